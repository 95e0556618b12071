package cps

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kunsheng-liu/percept-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rangingMax = 75.0

func denseCluster() []types.LidarPoint {
	var pts []types.LidarPoint
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			pts = append(pts, types.LidarPoint{X: x * 10, Y: y * 10, Range: 20})
		}
	}
	return pts
}

// TestSegmentationIsDeterministic verifies spec.md §8: identical input and
// registration order yields byte-identical obstacles.
func TestSegmentationIsDeterministic(t *testing.T) {
	pts := denseCluster()
	a := Segment(pts, rangingMax)
	b := Segment(pts, rangingMax)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("segmentation not deterministic: %s", diff)
	}
}

// TestEmptyLidarEmitsNoObstacles verifies the boundary case in spec.md §8.
func TestEmptyLidarEmitsNoObstacles(t *testing.T) {
	obstacles := Segment(nil, rangingMax)
	assert.Empty(t, obstacles)
}

// TestAccretionGroupsNearbyPoints verifies pass 1 merges points within
// gradient and merge-box tolerance into a single obstacle.
func TestAccretionGroupsNearbyPoints(t *testing.T) {
	pts := []types.LidarPoint{
		{X: 0, Y: 0, Range: 20},
		{X: 5, Y: 5, Range: 21},
		{X: 100, Y: 100, Range: 50},
	}
	obstacles := accrete(pts)
	require.Len(t, obstacles, 2)
	assert.Equal(t, 20.5, obstacles[0].Range)
}

// TestCoalesceTombstonesMergedObstacle verifies pass 2 merges two
// adjacent obstacles and tombstones the absorbed one.
func TestCoalesceTombstonesMergedObstacle(t *testing.T) {
	obstacles := []types.Obstacle{
		{Range: 20, Box: types.BoundingBox{Left: 0, Right: 20, Top: 0, Bottom: 20}},
		{Range: 21, Box: types.BoundingBox{Left: 15, Right: 35, Top: 15, Bottom: 35}},
	}
	coalesce(obstacles, rangingMax)

	assert.False(t, obstacles[0].Tombstoned(rangingMax))
	assert.True(t, obstacles[1].Tombstoned(rangingMax))
	assert.Equal(t, types.BoundingBox{Left: 0, Right: 35, Top: 0, Bottom: 35}, obstacles[0].Box)
}

// TestEmitTasksDropsSmallObstacles verifies the area/range filter in pass 3.
func TestEmitTasksDropsSmallObstacles(t *testing.T) {
	shapes := []types.ModelShape{{Name: "resnet-56", Width: 56, Height: 56, BatchCap: 4}}
	img := types.Image{Width: 200, Height: 200, Pix: make([]byte, 200*200*3)}

	small := types.Obstacle{Range: 20, Box: types.BoundingBox{Left: 0, Right: 10, Top: 0, Bottom: 10}}
	farAway := types.Obstacle{Range: rangingMax, Box: types.BoundingBox{Left: 0, Right: 100, Top: 0, Bottom: 100}}
	qualifying := types.Obstacle{Range: 20, Box: types.BoundingBox{Left: 0, Right: 100, Top: 0, Bottom: 100}}

	tasks := EmitTasks([]types.Obstacle{small, farAway, qualifying}, img, shapes, rangingMax)
	require.Len(t, tasks, 1)
	assert.InDelta(t, (rangingMax-20)/rangingMax, tasks[0].Priority, 1e-9)
	assert.Equal(t, "resnet-56", tasks[0].Model)
}

// TestEmitTasksPriorityBounds verifies spec.md §8: every emitted task has
// priority in (0, 1].
func TestEmitTasksPriorityBounds(t *testing.T) {
	shapes := []types.ModelShape{{Name: "resnet-56", Width: 56, Height: 56, BatchCap: 4}}
	img := types.Image{Width: 200, Height: 200, Pix: make([]byte, 200*200*3)}
	obstacles := Segment(denseCluster(), rangingMax)
	tasks := EmitTasks(obstacles, img, shapes, rangingMax)

	var sum float64
	for _, task := range tasks {
		assert.Greater(t, task.Priority, 0.0)
		assert.LessOrEqual(t, task.Priority, 1.0)
		sum += task.Priority
	}
	assert.LessOrEqual(t, sum, float64(len(tasks)))
}

// TestBestFitShapeBreaksTiesByRegistrationOrder verifies the tie-break rule
// in pass 3's shape selection.
func TestBestFitShapeBreaksTiesByRegistrationOrder(t *testing.T) {
	shapes := []types.ModelShape{
		{Name: "a", Width: 10, Height: 10},
		{Name: "b", Width: 10, Height: 10},
	}
	got := bestFitShape(shapes, 100)
	assert.Equal(t, "a", got.Name)
}

// TestScenarioTwoWellSeparatedPoints is spec.md §8 end-to-end scenario 1:
// two isolated LiDAR points never accrete together and each single-point
// obstacle has zero area, so both are dropped and no task is emitted.
func TestScenarioTwoWellSeparatedPoints(t *testing.T) {
	points := []types.LidarPoint{
		{X: 10, Y: 10, Range: 5.0},
		{X: 400, Y: 400, Range: 20.0},
	}
	obstacles := Segment(points, rangingMax)
	require.Len(t, obstacles, 2)
	for _, o := range obstacles {
		assert.Zero(t, o.Box.Area())
	}

	shapes := []types.ModelShape{{Name: "resnet-56", Width: 56, Height: 56, BatchCap: 4}}
	img := types.Image{Width: 500, Height: 500, Pix: make([]byte, 500*500*3)}
	tasks := EmitTasks(obstacles, img, shapes, rangingMax)
	assert.Empty(t, tasks)
}

// TestScenarioDenseClusterFormsSingleTask is spec.md §8 end-to-end
// scenario 2: a 60x60 grid of points near (100,100), all at range
// ~10.0m, accretes and coalesces into exactly one obstacle with area well
// above the drop threshold, emitting exactly one task whose priority
// matches (rangingMax-10)/rangingMax.
func TestScenarioDenseClusterFormsSingleTask(t *testing.T) {
	var points []types.LidarPoint
	r := 10.0
	for y := 70; y <= 130; y += 6 {
		for x := 70; x <= 130; x += 6 {
			points = append(points, types.LidarPoint{X: x, Y: y, Range: r})
			r += 0.01 // stays within ±1.0 m of 10.0
			if r > 11.0 {
				r = 9.0
			}
		}
	}

	obstacles := Segment(points, rangingMax)
	var surviving []types.Obstacle
	for _, o := range obstacles {
		if !o.Tombstoned(rangingMax) {
			surviving = append(surviving, o)
		}
	}
	require.Len(t, surviving, 1)
	assert.Greater(t, surviving[0].Box.Area(), float64(minObstacleArea))
	assert.InDelta(t, 10.0, surviving[0].Range, 1.0)

	shapes := []types.ModelShape{
		{Name: "resnet-56", Width: 56, Height: 56, BatchCap: 4},
		{Name: "resnet-112", Width: 112, Height: 112, BatchCap: 4},
	}
	img := types.Image{Width: 500, Height: 500, Pix: make([]byte, 500*500*3)}
	tasks := EmitTasks(obstacles, img, shapes, rangingMax)
	require.Len(t, tasks, 1)
	assert.InDelta(t, (rangingMax-10.0)/rangingMax, tasks[0].Priority, 0.02)
}

// TestScenarioDistantClustersDoNotMerge is spec.md §8 end-to-end scenario
// 3: two overlapping-box clusters at very different ranges (5m vs 30m)
// must not merge because their range delta exceeds the gradient
// sensitivity, yielding two tasks with the nearer cluster prioritized
// higher.
func TestScenarioDistantClustersDoNotMerge(t *testing.T) {
	var points []types.LidarPoint
	for y := 0; y < 80; y += 8 {
		for x := 0; x < 80; x += 8 {
			points = append(points, types.LidarPoint{X: x, Y: y, Range: 5.0})
		}
	}
	for y := 40; y < 120; y += 8 {
		for x := 40; x < 120; x += 8 {
			points = append(points, types.LidarPoint{X: x, Y: y, Range: 30.0})
		}
	}

	obstacles := Segment(points, rangingMax)
	var surviving []types.Obstacle
	for _, o := range obstacles {
		if !o.Tombstoned(rangingMax) {
			surviving = append(surviving, o)
		}
	}
	require.Len(t, surviving, 2)

	shapes := []types.ModelShape{{Name: "resnet-224", Width: 224, Height: 224, BatchCap: 2}}
	img := types.Image{Width: 500, Height: 500, Pix: make([]byte, 500*500*3)}
	tasks := EmitTasks(obstacles, img, shapes, rangingMax)
	require.Len(t, tasks, 2)
	if tasks[0].Priority < tasks[1].Priority {
		tasks[0], tasks[1] = tasks[1], tasks[0]
	}
	assert.Greater(t, tasks[0].Priority, tasks[1].Priority)
	assert.InDelta(t, (rangingMax-5.0)/rangingMax, tasks[0].Priority, 1e-9) // the top priority belongs to the 5m cluster
}
