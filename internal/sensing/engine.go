// Package sensing implements the Sensing Engine producer (spec.md §4.1):
// it loads each frame's image and LiDAR points and publishes them through
// the single-slot handshake, backing off until the consumer releases the
// slot before producing the next frame.
package sensing

import (
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/handshake"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// pollInterval is the back-pressure poll granularity from spec.md §4.1
// ("spins/sleeps at ~1ms granularity").
const pollInterval = time.Millisecond

// LidarSource reads the LiDAR points for one frame. DatasetSource answers
// by index; the live serial/packet-capture backends answer by point count
// since they have no inherent per-frame file boundary (SPEC_FULL.md §6).
type LidarSource interface {
	// ForFrame returns the LiDAR points belonging to frame i, or blocks
	// until enough live points have accumulated.
	ForFrame(frame int) ([]types.LidarPoint, error)
}

// datasetLidarAdapter adapts DatasetSource's per-index file read to
// LidarSource.
type datasetLidarAdapter struct{ root string }

func (d datasetLidarAdapter) ForFrame(frame int) ([]types.LidarPoint, error) {
	_, pts, err := (&DatasetSource{Root: d.root}).Produce(frame)
	return pts, err
}

// livePointsPerFrame is the point count the live backends treat as "one
// frame's worth", chosen to match a typical dense obstacle cluster
// (spec.md §8 scenario 2 uses 100).
const livePointsPerFrame = 100

type liveLidarAdapter struct {
	read func(minPoints int) ([]types.LidarPoint, error)
}

func (l liveLidarAdapter) ForFrame(int) ([]types.LidarPoint, error) {
	return l.read(livePointsPerFrame)
}

// NewSerialLidarSource adapts a SerialSource to LidarSource.
func NewSerialLidarSource(s *SerialSource) LidarSource { return liveLidarAdapter{read: s.Read} }

// NewPacketCaptureLidarSource adapts a PacketCaptureSource to LidarSource.
func NewPacketCaptureLidarSource(s *PacketCaptureSource) LidarSource {
	return liveLidarAdapter{read: s.Read}
}

// NewDatasetLidarSource adapts a dataset root to LidarSource.
func NewDatasetLidarSource(root string) LidarSource { return datasetLidarAdapter{root: root} }

// ImageSource loads frame i's camera image. Only the dataset backend
// implements it (SPEC_FULL.md §6: "the camera always comes from the
// dataset loader").
type ImageSource interface {
	ForFrame(frame int) (types.Image, error)
}

type datasetImageAdapter struct{ root string }

func (d datasetImageAdapter) ForFrame(frame int) (types.Image, error) {
	img, _, err := (&DatasetSource{Root: d.root}).Produce(frame)
	return img, err
}

// NewDatasetImageSource adapts a dataset root to ImageSource.
func NewDatasetImageSource(root string) ImageSource { return datasetImageAdapter{root: root} }

// Engine is the Sensing Engine producer: it iterates frames
// 0..frameCount-1, loading each one's image/LiDAR and publishing it into
// slot, honoring the single-slot back-pressure protocol.
type Engine struct {
	Images ImageSource
	Lidar  LidarSource
	Slot   *handshake.Slot

	frameCount int
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// New constructs a Sensing Engine that will produce frameCount frames.
func New(images ImageSource, lidar LidarSource, slot *handshake.Slot, frameCount int) *Engine {
	return &Engine{
		Images:     images,
		Lidar:      lidar,
		Slot:       slot,
		frameCount: frameCount,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the background production loop. It returns immediately;
// callers observe completion via Wait or by watching frame counts.
func (e *Engine) Start() {
	go e.run()
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for i := 0; i < e.frameCount; i++ {
		select {
		case <-e.stopCh:
			logging.Infof("sensing: stop requested at frame %d", i)
			return
		default:
		}

		img, err := e.Images.ForFrame(i)
		if err != nil {
			logging.Errorf("sensing: frame %d: %v", i, err)
			return
		}
		lidar, err := e.Lidar.ForFrame(i)
		if err != nil {
			logging.Errorf("sensing: frame %d: %v", i, err)
			return
		}

		e.Slot.Publish(img, lidar)
		logging.Debugf("sensing: published frame %d (%d lidar points)", i, len(lidar))

		// Back off until the consumer releases the slot, or stop is
		// requested — "best-effort" per spec.md §5: stop() may allow one
		// more frame to be produced, since Publish above already
		// happened.
		for e.Slot.Ready() {
			select {
			case <-e.stopCh:
				return
			case <-time.After(pollInterval):
			}
		}
	}
}

// Stop requests the producer to terminate. It is best-effort: the
// producer may already be mid-Publish for one more frame.
func (e *Engine) Stop() {
	close(e.stopCh)
}

// Wait blocks until the production loop has exited.
func (e *Engine) Wait() {
	<-e.doneCh
}
