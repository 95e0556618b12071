// Package engine implements the Inference Engine skeleton from spec.md
// §4.3: a fixed sync -> preprocess -> schedule -> dispatch -> clear loop
// whose variant-specific steps are supplied as capability interfaces
// rather than overridden methods (spec.md §9's virtual-method-to-
// capability-set re-architecture), matching the teacher's composition-
// over-inheritance style in internal/lidar/tracking_pipeline.go.
package engine

import (
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/handshake"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Preprocessor turns one frame's raw sensor data into the initial task
// queue. CPS segments LiDAR into obstacles and emits one task per
// qualifying obstacle; SGE emits one full-image task per registered
// model.
type Preprocessor interface {
	Preprocess(image types.Image, lidar []types.LidarPoint) []types.InferenceTask
}

// Scheduler reorders the task queue in place before dispatch. CPS sorts
// by descending priority; SGE is a no-op.
type Scheduler interface {
	Schedule(tasks []types.InferenceTask) []types.InferenceTask
}

// Dispatcher consumes tasks from the (possibly reordered) queue until the
// frame deadline, running inference as it goes.
type Dispatcher interface {
	Dispatch(tasks []types.InferenceTask, deadline time.Time) Stats
}

// Variant bundles the three capability hooks a scheduler variant (CPS or
// SGE) must supply. It deliberately has no other behavior — the loop
// below is the only place frame structure is defined.
type Variant struct {
	Preprocessor
	Scheduler
	Dispatcher
}

// Stats is one frame's observational summary, handed to an optional
// sink for telemetry (SPEC_FULL.md §4 FrameStats; never on the
// scheduling hot path).
type Stats struct {
	FrameIndex    int
	TasksEmitted  int
	TasksRun      int
	TasksDropped  int
	DispatchMS    float32
	DeadlineMissed bool
}

// StatsSink receives one Stats value per frame. It must not block the
// engine loop; telemetry consumers buffer or drop internally.
type StatsSink interface {
	Observe(Stats)
}

type noopSink struct{}

func (noopSink) Observe(Stats) {}

// Engine drives the frame loop described in spec.md §4.3 against a
// handshake slot and a Variant's capability hooks.
type Engine struct {
	Slot          *handshake.Slot
	Variant       Variant
	SensingPeriod time.Duration
	FrameCount    int
	Stats         StatsSink
}

// New constructs an Engine. stats may be nil, in which case frame
// statistics are discarded.
func New(slot *handshake.Slot, variant Variant, sensingPeriod time.Duration, frameCount int, stats StatsSink) *Engine {
	if stats == nil {
		stats = noopSink{}
	}
	return &Engine{
		Slot:          slot,
		Variant:       variant,
		SensingPeriod: sensingPeriod,
		FrameCount:    frameCount,
		Stats:         stats,
	}
}

// pollInterval mirrors the sensing side's handshake spin granularity.
const pollInterval = time.Millisecond

// Run executes exactly FrameCount frames, each following the fixed
// sync/preprocess/schedule/dispatch/clear structure, then returns.
func (e *Engine) Run() {
	for frame := 0; frame < e.FrameCount; frame++ {
		e.runOneFrame(frame)
	}
}

func (e *Engine) runOneFrame(frame int) {
	// Step 1: sync. Busy-wait until ready, take, release immediately so
	// the next sensing cycle can start (spec.md §4.3 step 1).
	for !e.Slot.Ready() {
		time.Sleep(pollInterval)
	}
	image, lidar, ok := e.Slot.Take()
	e.Slot.Release()
	if !ok {
		logging.Warnf("engine: frame %d: take() raced, skipping", frame)
		return
	}

	start := time.Now()
	deadline := start.Add(e.SensingPeriod)

	// Step 2: preprocess (variant hook).
	tasks := e.Variant.Preprocess(image, lidar)

	// Step 3: schedule (variant hook).
	tasks = e.Variant.Schedule(tasks)

	// Step 4: dispatch (variant hook), consuming tasks until the deadline.
	stats := e.Variant.Dispatch(tasks, deadline)
	stats.FrameIndex = frame
	stats.TasksEmitted = len(tasks)
	stats.DispatchMS = float32(time.Since(start).Milliseconds())

	// Step 5: clear taskQueue at end of frame — tasks is a local slice
	// and goes out of scope here; nothing further to release.
	e.Stats.Observe(stats)

	logging.Debugf("engine: frame %d: emitted=%d run=%d dropped=%d dispatch_ms=%.2f",
		frame, stats.TasksEmitted, stats.TasksRun, stats.TasksDropped, stats.DispatchMS)
}
