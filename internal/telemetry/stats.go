package telemetry

import (
	"sort"

	"github.com/kunsheng-liu/percept-engine/internal/engine"
	"gonum.org/v1/gonum/stat"
)

// LatencySummary is a display-only rolling statistic over recent
// dispatch times. It never feeds back into scheduling decisions — the
// dispatcher uses each Model's own raw last_spend_ms (spec.md §4.4.3),
// not a smoothed aggregate.
type LatencySummary struct {
	P50, P95 float64
	Samples  int
}

// Summarize computes the rolling p50/p95 dispatch latency over frames.
func Summarize(frames []engine.Stats) LatencySummary {
	if len(frames) == 0 {
		return LatencySummary{}
	}
	values := make([]float64, len(frames))
	for i, f := range frames {
		values[i] = float64(f.DispatchMS)
	}
	sort.Float64s(values)
	return LatencySummary{
		P50:     stat.Quantile(0.50, stat.Empirical, values, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, values, nil),
		Samples: len(values),
	}
}
