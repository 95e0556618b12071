// Package types holds the data model shared by the sensing, model-runtime,
// and scheduler packages: images, LiDAR points, obstacles, and inference
// tasks. Nothing in this package knows about engines or schedulers.
package types

import "time"

// Image is a decoded camera frame: an 8-bit, 3-channel pixel buffer in
// row-major (H, W, C) order, as produced by the dataset JPEG loader.
type Image struct {
	Width  int
	Height int
	// Pix holds Height*Width*3 bytes, BGR channel order (the order OpenCV
	// decodes JPEG into), row-major.
	Pix []byte
}

// Channels is fixed at 3 (8-bit BGR) for every Image in this system.
const Channels = 3

// At returns the BGR triple at (x, y).
func (im *Image) At(x, y int) (b, g, r byte) {
	i := (y*im.Width + x) * Channels
	return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
}

// Crop returns a new Image holding the pixels inside box, clamped to the
// source bounds. The returned Image owns its own backing array; it never
// aliases the source's Pix so that frame-scoped crops can be released
// independently (spec §5 resource discipline).
func (im *Image) Crop(box BoundingBox) Image {
	left := clampInt(int(box.Left), 0, im.Width)
	right := clampInt(int(box.Right), left, im.Width)
	top := clampInt(int(box.Top), 0, im.Height)
	bottom := clampInt(int(box.Bottom), top, im.Height)

	w := right - left
	h := bottom - top
	out := Image{Width: w, Height: h, Pix: make([]byte, w*h*Channels)}
	for y := 0; y < h; y++ {
		srcOff := ((y+top)*im.Width + left) * Channels
		dstOff := y * w * Channels
		copy(out.Pix[dstOff:dstOff+w*Channels], im.Pix[srcOff:srcOff+w*Channels])
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LidarPoint is one range-finder return: an integer pixel coordinate in
// the camera's image plane and a range measurement in meters.
type LidarPoint struct {
	X, Y  int
	Range float64
}

// BoundingBox is an axis-aligned region in image coordinates.
type BoundingBox struct {
	Left, Right, Top, Bottom float64
}

// Width and Height report the box extents.
func (b BoundingBox) Width() float64  { return b.Right - b.Left }
func (b BoundingBox) Height() float64 { return b.Bottom - b.Top }

// Area reports the box area in pixels^2. A degenerate (single-point) box
// has area 0.
func (b BoundingBox) Area() float64 { return b.Width() * b.Height() }

// Expand returns a copy of b grown by m on every side.
func (b BoundingBox) Expand(m float64) BoundingBox {
	return BoundingBox{Left: b.Left - m, Right: b.Right + m, Top: b.Top - m, Bottom: b.Bottom + m}
}

// Contains reports whether (x, y) falls inside b (inclusive).
func (b BoundingBox) Contains(x, y int) bool {
	fx, fy := float64(x), float64(y)
	return fx >= b.Left && fx <= b.Right && fy >= b.Top && fy <= b.Bottom
}

// Union returns the smallest box covering both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Left:   minf(b.Left, o.Left),
		Right:  maxf(b.Right, o.Right),
		Top:    minf(b.Top, o.Top),
		Bottom: maxf(b.Bottom, o.Bottom),
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Obstacle is a transient grouping of LiDAR points produced by CPS
// segmentation pass 1/2. Range is set to the configured ranging max
// (lidar_range_max) to tombstone an obstacle merged away in pass 2.
type Obstacle struct {
	Range float64
	Box   BoundingBox
}

// Tombstoned reports whether the obstacle was merged away and should be
// ignored by later passes.
func (o Obstacle) Tombstoned(rangingMax float64) bool {
	return o.Range >= rangingMax
}

// ModelShape identifies a registered model's fixed square (or rectangular)
// input footprint, used by CPS pass 3 to pick the best-fit model for an
// obstacle's crop.
type ModelShape struct {
	Name   string
	Width  int
	Height int
	// BatchCap is B in spec terms: the maximum number of samples one
	// inference call accepts.
	BatchCap int
}

// PixelArea reports Width*Height.
func (s ModelShape) PixelArea() int { return s.Width * s.Height }

// TaskKind distinguishes what an InferenceTask's Data field holds, per the
// re-architecting note in spec.md §9 (tagged variant instead of void*).
type TaskKind int

const (
	// TaskImageRegion carries a cropped obstacle region (CPS).
	TaskImageRegion TaskKind = iota
	// TaskFullImage carries the whole camera frame (SGE).
	TaskFullImage
)

// InferenceTask is a pending inference request: an input region targeting
// one registered model, ranked by Priority.
type InferenceTask struct {
	Kind     TaskKind
	Data     Image
	Priority float64
	Model    string // registered model name; always present in the engine's model set
}

// FrameContext is the stack-scoped timing window for one sensing period.
type FrameContext struct {
	Index     int
	Start     time.Time
	Deadline  time.Time
	SensingMS int
}

// Remaining returns the wall-clock budget left before the frame deadline,
// clamped to zero.
func (f FrameContext) Remaining(now time.Time) time.Duration {
	d := f.Deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether now is at or past the frame deadline.
func (f FrameContext) Expired(now time.Time) bool {
	return !now.Before(f.Deadline)
}
