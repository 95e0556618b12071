package handshake

import (
	"sync"
	"testing"
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishTakeReleaseRoundTrip(t *testing.T) {
	s := New()
	require.False(t, s.Ready())

	img := types.Image{Width: 1, Height: 1, Pix: []byte{1, 2, 3}}
	pts := []types.LidarPoint{{X: 1, Y: 2, Range: 3.5}}

	done := make(chan struct{})
	go func() {
		s.Publish(img, pts)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish did not return")
	}

	require.True(t, s.Ready())
	gotImg, gotPts, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, img, gotImg)
	assert.Equal(t, pts, gotPts)

	// The slot stays Ready after Take, until Release.
	require.True(t, s.Ready())
	s.Release()
	assert.False(t, s.Ready())

	_, _, ok = s.Take()
	assert.False(t, ok)
}

// TestBackPressure mirrors spec.md §8 scenario 6: a slow consumer must not
// let the producer overwrite an unconsumed frame.
func TestBackPressure(t *testing.T) {
	s := New()
	frame0 := types.Image{Width: 1, Height: 1, Pix: []byte{0}}
	frame1 := types.Image{Width: 1, Height: 1, Pix: []byte{1}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Publish(frame0, nil)
		s.Publish(frame1, nil) // blocks until frame0 is released
	}()

	time.Sleep(50 * time.Millisecond)
	got, _, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, frame0, got)

	// Still frame0 — the producer must be blocked in its second Publish.
	time.Sleep(20 * time.Millisecond)
	got, _, ok = s.Take()
	require.True(t, ok)
	assert.Equal(t, frame0, got)

	s.Release()
	wg.Wait()

	got, _, ok = s.Take()
	require.True(t, ok)
	assert.Equal(t, frame1, got)
}
