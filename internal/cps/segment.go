// Package cps implements the reference CPS scheduler variant (spec.md
// §4.4): LiDAR segmentation, priority scheduling, and the deadline-aware
// serial dispatch loop. Segmentation is grounded on the teacher's
// obstacle-merge idiom in internal/lidar/dbscan_clusterer.go (deterministic,
// insertion-order-stable grouping) and the centroid/extent bookkeeping in
// internal/lidar/obb.go, generalized from 3D PCA-oriented boxes down to the
// spec's 2D axis-aligned accretion/merge/tombstone rule.
package cps

import (
	"math"

	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Tuning constants from spec.md §4.4.1. Unlike lidar_range_max these are
// not exposed through Config — the reference design fixes them.
const (
	lidarGradientSensitive = 5.0
	lidarMergingSensitive  = 15.0
	minObstacleArea        = 56 * 56 // 3136 px^2
)

// Segment runs LiDAR segmentation passes 1 and 2 over points (in input
// order) and returns every obstacle, including those tombstoned by pass 2
// (range set to rangingMax); EmitTasks skips the tombstones.
func Segment(points []types.LidarPoint, rangingMax float64) []types.Obstacle {
	obstacles := accrete(points)
	coalesce(obstacles, rangingMax)
	return obstacles
}

// accrete is pass 1: for each point, find the first existing obstacle
// whose range is within lidarGradientSensitive and whose box, expanded by
// lidarMergingSensitive, contains the point. On a match the obstacle's
// range becomes the mean of the two values and its box extends to cover
// the point; otherwise a new single-point obstacle is started. First
// match wins, in insertion order.
func accrete(points []types.LidarPoint) []types.Obstacle {
	var obstacles []types.Obstacle
	for _, p := range points {
		pointBox := types.BoundingBox{Left: float64(p.X), Right: float64(p.X), Top: float64(p.Y), Bottom: float64(p.Y)}

		matched := -1
		for i := range obstacles {
			if math.Abs(obstacles[i].Range-p.Range) >= lidarGradientSensitive {
				continue
			}
			if !obstacles[i].Box.Expand(lidarMergingSensitive).Contains(p.X, p.Y) {
				continue
			}
			matched = i
			break
		}

		if matched == -1 {
			obstacles = append(obstacles, types.Obstacle{Range: p.Range, Box: pointBox})
			continue
		}
		obstacles[matched].Range = (obstacles[matched].Range + p.Range) / 2
		obstacles[matched].Box = obstacles[matched].Box.Union(pointBox)
	}
	return obstacles
}

// coalesce is pass 2: repeatedly scans the obstacle list pairwise, merging
// i,j whenever their ranges are within lidarGradientSensitive and their
// merge-inflated boxes overlap on both axes. i absorbs j's box (union) and
// range (mean); j is tombstoned by setting its range to rangingMax.
// Tombstones are skipped in all later comparisons, including within the
// same pass. Scanning repeats until a full pass produces no merge, since a
// merge can newly satisfy the predicate for a pair examined earlier.
func coalesce(obstacles []types.Obstacle, rangingMax float64) {
	for {
		mergedAny := false
		for i := range obstacles {
			if obstacles[i].Tombstoned(rangingMax) {
				continue
			}
			for j := range obstacles {
				if i == j || obstacles[j].Tombstoned(rangingMax) {
					continue
				}
				if !shouldMerge(obstacles[i], obstacles[j]) {
					continue
				}
				obstacles[i].Box = obstacles[i].Box.Union(obstacles[j].Box)
				obstacles[i].Range = (obstacles[i].Range + obstacles[j].Range) / 2
				obstacles[j].Range = rangingMax
				mergedAny = true
			}
		}
		if !mergedAny {
			return
		}
	}
}

// shouldMerge implements spec.md §4.4.1's pairwise merge predicate.
func shouldMerge(a, b types.Obstacle) bool {
	if math.Abs(a.Range-b.Range) >= lidarGradientSensitive {
		return false
	}
	vertical := math.Max(a.Box.Bottom-b.Box.Top, b.Box.Bottom-a.Box.Top) < (a.Box.Height() + b.Box.Height() + lidarMergingSensitive)
	horizontal := math.Max(a.Box.Right-b.Box.Left, b.Box.Right-a.Box.Left) < (a.Box.Width() + b.Box.Width() + lidarMergingSensitive)
	return vertical && horizontal
}

// EmitTasks is pass 3: for every surviving obstacle whose box area exceeds
// minObstacleArea and whose range is below rangingMax, pick the best-fit
// registered shape, crop the frame to the obstacle's box, and emit an
// InferenceTask targeting that shape's model. Small or too-distant
// obstacles are silently dropped.
func EmitTasks(obstacles []types.Obstacle, frame types.Image, shapes []types.ModelShape, rangingMax float64) []types.InferenceTask {
	var tasks []types.InferenceTask
	for _, o := range obstacles {
		if o.Tombstoned(rangingMax) {
			continue
		}
		if o.Box.Area() <= minObstacleArea || o.Range >= rangingMax {
			continue
		}
		shape := bestFitShape(shapes, o.Box.Area())
		tasks = append(tasks, types.InferenceTask{
			Kind:     types.TaskImageRegion,
			Data:     frame.Crop(o.Box),
			Priority: (rangingMax - o.Range) / rangingMax,
			Model:    shape.Name,
		})
	}
	return tasks
}

// bestFitShape picks the registered shape whose W*H is closest to area,
// first match winning ties in registration order.
func bestFitShape(shapes []types.ModelShape, area float64) types.ModelShape {
	best := shapes[0]
	bestDiff := math.Abs(area - float64(best.PixelArea()))
	for _, s := range shapes[1:] {
		diff := math.Abs(area - float64(s.PixelArea()))
		if diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	return best
}
