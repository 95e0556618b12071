package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/kunsheng-liu/percept-engine/internal/engine"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"
)

// maxRecent bounds the dashboard's in-memory window; it is a display
// concern only and is independent of the Journal's on-disk history.
const maxRecent = 200

// Dashboard is the optional admin HTTP surface: a live echarts chart and
// gonum/plot sparkline of recent frame timings, plus a chunked HTTP
// stream for an external live monitor. It implements engine.StatsSink so
// it can be wired straight into the Inference Engine's frame loop, but it
// never blocks that loop — Observe only ever appends and does a
// non-blocking channel send.
type Dashboard struct {
	mu          sync.Mutex
	recent      []engine.Stats
	subscribers map[int]chan engine.Stats
	nextSubID   int
}

// NewDashboard constructs an empty Dashboard.
func NewDashboard() *Dashboard {
	return &Dashboard{subscribers: make(map[int]chan engine.Stats)}
}

// Observe implements engine.StatsSink.
func (d *Dashboard) Observe(s engine.Stats) {
	d.mu.Lock()
	d.recent = append(d.recent, s)
	if len(d.recent) > maxRecent {
		d.recent = d.recent[len(d.recent)-maxRecent:]
	}
	subs := make([]chan engine.Stats, 0, len(d.subscribers))
	for _, ch := range d.subscribers {
		subs = append(subs, ch)
	}
	d.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			logging.Debugf("telemetry: dashboard subscriber is slow, dropping frame %d", s.FrameIndex)
		}
	}
}

func (d *Dashboard) snapshot() []engine.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]engine.Stats, len(d.recent))
	copy(out, d.recent)
	return out
}

func (d *Dashboard) subscribe() (int, chan engine.Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSubID
	d.nextSubID++
	ch := make(chan engine.Stats, 16)
	d.subscribers[id] = ch
	return id, ch
}

func (d *Dashboard) unsubscribe(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

// AttachRoutes registers the dashboard's debug-only endpoints under mux,
// gated the same way the teacher gates its admin surface: tsweb.Debugger
// mounts them under /debug/ behind tsweb's debug-access check. The chart
// and sparkline are linked from the /debug/ index page; the stream is
// registered without a link.
func (d *Dashboard) AttachRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("frames/chart", "live echarts line chart of recent frame dispatch times", d.handleChart)
	debug.HandleFunc("frames/sparkline.png", "gonum/plot PNG sparkline of recent dispatch latency", d.handleSparkline)
	debug.HandleSilentFunc("frames/stream", d.handleStream)
}

func (d *Dashboard) handleChart(w http.ResponseWriter, r *http.Request) {
	recent := d.snapshot()
	summary := Summarize(recent)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Frame Dispatch Latency", Theme: "dark"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Frame Dispatch Latency",
			Subtitle: fmt.Sprintf("samples=%d p50=%.2fms p95=%.2fms", summary.Samples, summary.P50, summary.P95),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	xAxis := make([]string, len(recent))
	values := make([]opts.LineData, len(recent))
	for i, s := range recent {
		xAxis[i] = fmt.Sprintf("%d", s.FrameIndex)
		values[i] = opts.LineData{Value: s.DispatchMS}
	}
	line.SetXAxis(xAxis).AddSeries("dispatch_ms", values)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (d *Dashboard) handleSparkline(w http.ResponseWriter, r *http.Request) {
	recent := d.snapshot()

	p := plot.New()
	p.Title.Text = "dispatch_ms"
	pts := make(plotter.XYs, len(recent))
	for i, s := range recent {
		pts[i].X = float64(i)
		pts[i].Y = float64(s.DispatchMS)
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		http.Error(w, fmt.Sprintf("build sparkline: %v", err), http.StatusInternalServerError)
		return
	}
	p.Add(line)

	wt, err := p.WriterTo(4*vg.Inch, 1*vg.Inch, "png")
	if err != nil {
		http.Error(w, fmt.Sprintf("render sparkline: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		logging.Warnf("telemetry: write sparkline: %v", err)
	}
}

// handleStream broadcasts each new frame's stats to a connected client as
// newline-delimited JSON over a plain chunked HTTP response — the
// teacher's gRPC streaming layer was dropped (see DESIGN.md) since its
// generated stubs cannot be produced without running protoc;
// this is the same "push telemetry to a remote monitor" capability
// without fabricating codegen.
func (d *Dashboard) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := d.subscribe()
	defer d.unsubscribe(id)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(s); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
