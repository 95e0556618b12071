package sge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu           sync.Mutex
	inferCalls   int32
	inferDelay   time.Duration
	preprocessErr error
}

func (f *fakeModel) Preprocess(types.Image) ([]float32, error) {
	return []float32{0}, f.preprocessErr
}

func (f *fakeModel) AddInput([]float32) error { return nil }

func (f *fakeModel) Infer() error {
	time.Sleep(f.inferDelay)
	atomic.AddInt32(&f.inferCalls, 1)
	return nil
}

// TestFanOutEmitsOneTaskPerModel verifies spec.md §4.5 preprocess: one
// full-image task per registered model.
func TestFanOutEmitsOneTaskPerModel(t *testing.T) {
	f := FanOut{ModelNames: []string{"yolo-256", "yolo-384", "yolo-512"}}
	tasks := f.Preprocess(types.Image{Width: 10, Height: 10}, nil)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, types.TaskFullImage, task.Kind)
		assert.Equal(t, -1.0, task.Priority)
	}
}

// TestDispatchJoinsAllStartedInferences verifies every started inference
// completes before Dispatch returns, even though each runs concurrently.
func TestDispatchJoinsAllStartedInferences(t *testing.T) {
	a := &fakeModel{inferDelay: 10 * time.Millisecond}
	b := &fakeModel{inferDelay: 10 * time.Millisecond}
	d := &Dispatcher{Models: map[string]Model{"a": a, "b": b}}

	tasks := []types.InferenceTask{
		{Kind: types.TaskFullImage, Model: "a", Priority: -1},
		{Kind: types.TaskFullImage, Model: "b", Priority: -1},
	}
	stats := d.Dispatch(tasks, time.Now().Add(time.Second))

	assert.Equal(t, int32(1), a.inferCalls)
	assert.Equal(t, int32(1), b.inferCalls)
	assert.Equal(t, 2, stats.TasksRun)
	assert.False(t, stats.DeadlineMissed)
}

// TestDispatchStopsStartingPastDeadline verifies that once the deadline
// has passed no inference is started and every unstarted task is counted
// as dropped.
func TestDispatchStopsStartingPastDeadline(t *testing.T) {
	a := &fakeModel{}
	d := &Dispatcher{Models: map[string]Model{"a": a}}

	tasks := []types.InferenceTask{
		{Kind: types.TaskFullImage, Model: "a", Priority: -1},
		{Kind: types.TaskFullImage, Model: "a", Priority: -1},
	}
	stats := d.Dispatch(tasks, time.Now().Add(-time.Millisecond))

	assert.True(t, stats.DeadlineMissed)
	assert.Equal(t, 0, stats.TasksRun)
	assert.Equal(t, 2, stats.TasksDropped)
}

// TestScenarioAllModelsConcurrent is spec.md §8 end-to-end scenario 5:
// three YOLO models registered under a generous 1000ms sensing period,
// each costing ~50ms. All three inferences start concurrently and join
// within the frame, leaving the queue empty.
func TestScenarioAllModelsConcurrent(t *testing.T) {
	a := &fakeModel{inferDelay: 50 * time.Millisecond}
	b := &fakeModel{inferDelay: 50 * time.Millisecond}
	c := &fakeModel{inferDelay: 50 * time.Millisecond}
	d := &Dispatcher{Models: map[string]Model{"yolo-256": a, "yolo-384": b, "yolo-512": c}}

	fanOut := FanOut{ModelNames: []string{"yolo-256", "yolo-384", "yolo-512"}}
	tasks := fanOut.Preprocess(types.Image{Width: 10, Height: 10}, nil)

	start := time.Now()
	stats := d.Dispatch(tasks, start.Add(time.Second))
	elapsed := time.Since(start)

	assert.Equal(t, int32(1), a.inferCalls)
	assert.Equal(t, int32(1), b.inferCalls)
	assert.Equal(t, int32(1), c.inferCalls)
	assert.Equal(t, 3, stats.TasksRun)
	assert.Equal(t, 0, stats.TasksDropped)
	assert.False(t, stats.DeadlineMissed)
	// Concurrent, not serial: well under 3*50ms.
	assert.Less(t, elapsed, 150*time.Millisecond)
}

// TestDispatchDropsOnPreprocessError verifies a preprocessing failure is
// logged and dropped rather than starting a broken inference.
func TestDispatchDropsOnPreprocessError(t *testing.T) {
	a := &fakeModel{preprocessErr: errors.New("bad frame")}
	d := &Dispatcher{Models: map[string]Model{"a": a}}

	tasks := []types.InferenceTask{{Kind: types.TaskFullImage, Model: "a", Priority: -1}}
	stats := d.Dispatch(tasks, time.Now().Add(time.Second))

	assert.Equal(t, 0, stats.TasksRun)
	assert.Equal(t, 1, stats.TasksDropped)
	assert.Equal(t, int32(0), a.inferCalls)
}
