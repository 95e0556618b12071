package cps

import (
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/engine"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Model is the subset of the Model Adapter contract the dispatcher needs.
// Defined locally (rather than importing modelrt directly) so dispatch
// logic can be tested against a fake without touching ONNX Runtime or
// gocv; *modelrt.Model satisfies it by method set alone.
type Model interface {
	Preprocess(img types.Image) ([]float32, error)
	AddInput(stream []float32) error
	FullyBatched() bool
	Infer() error
	LastSpendMS() float32
}

// Dispatcher is the CPS dispatch loop from spec.md §4.4.3: deadline-aware,
// strictly serial, one model active at a time.
type Dispatcher struct {
	Models map[string]Model
	// Order is model registration order, used as the argmax tie-break so
	// dispatch is deterministic across identical inputs.
	Order []string
}

// NewDispatcher builds a Dispatcher from the registered shapes (for
// deterministic ordering) and their corresponding models.
func NewDispatcher(shapes []types.ModelShape, models map[string]Model) *Dispatcher {
	order := make([]string, len(shapes))
	for i, s := range shapes {
		order[i] = s.Name
	}
	return &Dispatcher{Models: models, Order: order}
}

// epsilonPriority is the "effectively zero" threshold from spec.md §4.4.3.
const epsilonPriority = 1e-6

// Dispatch runs the per-frame loop: pick the model with the highest
// remaining priority, skip it for the frame if its last measured cost
// exceeds the remaining budget, otherwise pull matching tasks off the
// front of the queue until it's fully batched, then run inference. Tasks
// never reached by deadline are dropped at frame end.
func (d *Dispatcher) Dispatch(tasks []types.InferenceTask, deadline time.Time) engine.Stats {
	stats := engine.Stats{}

	modelPriority := make(map[string]float64, len(d.Order))
	for _, t := range tasks {
		modelPriority[t.Model] += t.Priority
	}

	queue := tasks
	for {
		now := time.Now()
		if !now.Before(deadline) {
			stats.DeadlineMissed = true
			break
		}

		mStar, maxPriority := "", -1.0
		for _, name := range d.Order {
			if p := modelPriority[name]; p > maxPriority {
				maxPriority = p
				mStar = name
			}
		}
		if mStar == "" || maxPriority < epsilonPriority {
			break
		}

		model := d.Models[mStar]
		remaining := deadline.Sub(now)
		if float64(model.LastSpendMS()) > float64(remaining.Milliseconds()) {
			logging.Debugf("cps.dispatch: deferring model %s, cost %.2fms exceeds remaining %s",
				mStar, model.LastSpendMS(), remaining)
			modelPriority[mStar] = 0
			continue
		}

		var kept []types.InferenceTask
		for _, t := range queue {
			if t.Model != mStar || model.FullyBatched() {
				kept = append(kept, t)
				continue
			}
			modelPriority[mStar] -= t.Priority

			sample, err := model.Preprocess(t.Data)
			if err != nil {
				logging.Errorf("cps.dispatch: preprocess for %s: %v", mStar, err)
				stats.TasksDropped++
				continue
			}
			if err := model.AddInput(sample); err != nil {
				logging.Errorf("cps.dispatch: add_input for %s: %v", mStar, err)
				stats.TasksDropped++
				continue
			}
			stats.TasksRun++
		}
		queue = kept

		if err := model.Infer(); err != nil {
			logging.Errorf("cps.dispatch: infer for %s: %v", mStar, err)
		}
	}

	stats.TasksDropped += len(queue)
	return stats
}
