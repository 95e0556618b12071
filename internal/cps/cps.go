package cps

import (
	"github.com/kunsheng-liu/percept-engine/internal/engine"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Segmenter implements engine.Preprocessor for the CPS variant: LiDAR
// segmentation (passes 1-2) followed by task emission (pass 3).
type Segmenter struct {
	Shapes     []types.ModelShape
	RangingMax float64
}

func (s Segmenter) Preprocess(image types.Image, lidar []types.LidarPoint) []types.InferenceTask {
	obstacles := Segment(lidar, s.RangingMax)
	return EmitTasks(obstacles, image, s.Shapes, s.RangingMax)
}

// PriorityScheduler implements engine.Scheduler by descending-priority sort.
type PriorityScheduler struct{}

func (PriorityScheduler) Schedule(tasks []types.InferenceTask) []types.InferenceTask {
	return Schedule(tasks)
}

// NewVariant assembles the full CPS engine.Variant: segmentation,
// priority scheduling, and deadline-aware dispatch.
func NewVariant(shapes []types.ModelShape, rangingMax float64, models map[string]Model) engine.Variant {
	return engine.Variant{
		Preprocessor: Segmenter{Shapes: shapes, RangingMax: rangingMax},
		Scheduler:    PriorityScheduler{},
		Dispatcher:   NewDispatcher(shapes, models),
	}
}
