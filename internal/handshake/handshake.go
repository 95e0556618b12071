// Package handshake implements the single-slot producer/consumer
// rendezvous between the Sensing Engine and the Inference Engine
// (spec.md §3 "Handshake slot", §5 "Shared state"). It generalizes the
// teacher's internal/serialmux.SerialMux subscriber-map locking idiom down
// to exactly one slot with two states, Empty and Ready, and uses a
// sync.Cond (rather than a channel) so ready() can be polled without
// blocking, as spec.md §4.3 step 1 requires.
package handshake

import (
	"sync"

	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Slot is the process-wide handshake buffer. Construct it with New; the
// zero value has no condition variable and panics on Publish or Release.
type Slot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready bool
	image types.Image
	lidar []types.LidarPoint
}

// New returns an initialized, Empty Slot.
func New() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish transitions the slot from Empty to Ready, storing image and
// lidar. Callers (the producer) must only call Publish when the slot is
// Empty; Publish blocks until that holds, so a slow consumer stalls the
// producer exactly as spec.md §4.1 requires ("a slow consumer stalls the
// producer").
func (s *Slot) Publish(image types.Image, lidar []types.LidarPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.ready {
		s.cond.Wait()
	}
	s.image = image
	s.lidar = lidar
	s.ready = true
	s.cond.Broadcast()
}

// Ready reports whether the slot currently holds unconsumed data. It never
// blocks.
func (s *Slot) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Take returns the published image and lidar points. It is only valid
// after Ready() reports true; the slot remains Ready (so a concurrent
// Ready()/Take() observes the same data) until Release is called.
func (s *Slot) Take() (types.Image, []types.LidarPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return types.Image{}, nil, false
	}
	return s.image, s.lidar, true
}

// Release transitions the slot back to Empty, unblocking a producer
// waiting in Publish, and drops the engine's references to the consumed
// frame so it can be garbage collected before the next frame begins
// (spec.md §5 resource discipline).
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.image = types.Image{}
	s.lidar = nil
	s.cond.Broadcast()
}
