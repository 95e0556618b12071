// Package sge implements the improved SGE scheduler variant (spec.md
// §4.5): every registered detection model runs once per frame against
// the full camera image, with models dispatched concurrently rather than
// CPS's strictly serial loop. Grounded on spec.md §9's scoped-task-group
// re-architecture note and the teacher's goroutine+sync.WaitGroup
// lifecycle shape in root main.go.
package sge

import (
	"sync"
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/engine"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Model is the subset of the Model Adapter contract SGE dispatch needs.
type Model interface {
	Preprocess(img types.Image) ([]float32, error)
	AddInput(stream []float32) error
	Infer() error
}

// FanOut implements engine.Preprocessor: one TaskFullImage task per
// registered model, priority unused (spec.md §4.5 sets it to -1).
type FanOut struct {
	ModelNames []string
}

func (f FanOut) Preprocess(image types.Image, _ []types.LidarPoint) []types.InferenceTask {
	tasks := make([]types.InferenceTask, len(f.ModelNames))
	for i, name := range f.ModelNames {
		tasks[i] = types.InferenceTask{Kind: types.TaskFullImage, Data: image, Priority: -1, Model: name}
	}
	return tasks
}

// NoopScheduler implements engine.Scheduler as a pass-through.
type NoopScheduler struct{}

func (NoopScheduler) Schedule(tasks []types.InferenceTask) []types.InferenceTask { return tasks }

// Dispatcher is the SGE concurrent dispatch loop: while the deadline has
// not passed and tasks remain, pop the front task, preprocess it on the
// dispatch goroutine, add it as the model's single sample, and start its
// inference on a dedicated goroutine. The deadline gates starting new
// work only — every started inference is joined before the frame ends,
// even if that join happens after the deadline.
type Dispatcher struct {
	Models map[string]Model
}

func (d *Dispatcher) Dispatch(tasks []types.InferenceTask, deadline time.Time) engine.Stats {
	stats := engine.Stats{}
	var wg sync.WaitGroup

	i := 0
	for i < len(tasks) && time.Now().Before(deadline) {
		task := tasks[i]
		i++

		model, ok := d.Models[task.Model]
		if !ok {
			logging.Errorf("sge.dispatch: no model registered for %q", task.Model)
			stats.TasksDropped++
			continue
		}

		sample, err := model.Preprocess(task.Data)
		if err != nil {
			logging.Errorf("sge.dispatch: preprocess for %s: %v", task.Model, err)
			stats.TasksDropped++
			continue
		}
		if err := model.AddInput(sample); err != nil {
			logging.Errorf("sge.dispatch: add_input for %s: %v", task.Model, err)
			stats.TasksDropped++
			continue
		}

		wg.Add(1)
		stats.TasksRun++
		go func(m Model, name string) {
			defer wg.Done()
			if err := m.Infer(); err != nil {
				logging.Errorf("sge.dispatch: infer for %s: %v", name, err)
			}
		}(model, task.Model)
	}

	if i < len(tasks) {
		stats.DeadlineMissed = true
		stats.TasksDropped += len(tasks) - i
	}

	wg.Wait()
	return stats
}

// NewVariant assembles the full SGE engine.Variant.
func NewVariant(modelNames []string, models map[string]Model) engine.Variant {
	return engine.Variant{
		Preprocessor: FanOut{ModelNames: modelNames},
		Scheduler:    NoopScheduler{},
		Dispatcher:   &Dispatcher{Models: models},
	}
}
