package modelrt

import (
	"errors"
	"testing"
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	runDelay time.Duration
	runErr   error
	calls    int
	lastLen  int
}

func (f *fakeRuntime) Run(batch []float32) error {
	f.calls++
	f.lastLen = len(batch)
	if f.runDelay > 0 {
		time.Sleep(f.runDelay)
	}
	return f.runErr
}

func (f *fakeRuntime) Close() error { return nil }

func testShape() types.ModelShape {
	return types.ModelShape{Name: "resnet-56", Width: 2, Height: 2, BatchCap: 2}
}

// TestWarmupSeedsSpendTime verifies the second warm-up inference's
// duration becomes the initial last_spend_ms (spec.md §4.2).
func TestWarmupSeedsSpendTime(t *testing.T) {
	rt := &fakeRuntime{runDelay: 5 * time.Millisecond}
	shape := testShape()
	m, err := newModel(shape, VariantDetection, shape.PixelArea()*types.Channels, rt)
	require.NoError(t, err)

	assert.Equal(t, 2, rt.calls)
	assert.GreaterOrEqual(t, m.LastSpendMS(), float32(4))
}

// TestAddInputRejectsWrongLength verifies InputShape is reported without
// mutating the buffer.
func TestAddInputRejectsWrongLength(t *testing.T) {
	rt := &fakeRuntime{}
	shape := testShape()
	m, err := newModel(shape, VariantDetection, shape.PixelArea()*types.Channels, rt)
	require.NoError(t, err)

	err = m.AddInput(make([]float32, 3))
	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.KindInputShape, te.Kind)
	assert.Equal(t, 0, m.BufferLen())
}

// TestFullyBatchedAtCapacity verifies the buffer invariant from spec.md §8:
// fullyBatched iff buffer.len() == B*S.
func TestFullyBatchedAtCapacity(t *testing.T) {
	rt := &fakeRuntime{}
	shape := testShape()
	s := shape.PixelArea() * types.Channels
	m, err := newModel(shape, VariantDetection, s, rt)
	require.NoError(t, err)

	require.NoError(t, m.AddInput(make([]float32, s)))
	assert.False(t, m.FullyBatched())
	require.NoError(t, m.AddInput(make([]float32, s)))
	assert.True(t, m.FullyBatched())
	assert.Equal(t, shape.BatchCap*s, m.BufferLen())
}

// TestInferEmptyBufferIsNoop verifies EmptyBatch: infer() on an empty
// buffer does not invoke the runtime.
func TestInferEmptyBufferIsNoop(t *testing.T) {
	rt := &fakeRuntime{}
	shape := testShape()
	m, err := newModel(shape, VariantDetection, shape.PixelArea()*types.Channels, rt)
	require.NoError(t, err)
	rt.calls = 0 // reset past warm-up calls

	require.NoError(t, m.Infer())
	assert.Equal(t, 0, rt.calls)
}

// TestInferRejectsPartialBufferAndRetainsIt verifies the InputShape path:
// a buffer whose length is not a multiple of S is reported and left
// untouched rather than silently padded.
func TestInferRejectsPartialBufferAndRetainsIt(t *testing.T) {
	rt := &fakeRuntime{}
	shape := testShape()
	s := shape.PixelArea() * types.Channels
	m, err := newModel(shape, VariantDetection, s, rt)
	require.NoError(t, err)
	rt.calls = 0

	m.buffer = make([]float32, s+1) // force a non-multiple length directly

	err = m.Infer()
	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.KindInputShape, te.Kind)
	assert.Equal(t, s+1, m.BufferLen())
	assert.Equal(t, 0, rt.calls)
}

// TestInferZeroPadsAndClearsBuffer verifies a partial-batch infer still
// submits a full B*S batch (zero-padded) and clears state afterward.
func TestInferZeroPadsAndClearsBuffer(t *testing.T) {
	rt := &fakeRuntime{}
	shape := testShape()
	s := shape.PixelArea() * types.Channels
	m, err := newModel(shape, VariantDetection, s, rt)
	require.NoError(t, err)
	rt.calls = 0

	sample := make([]float32, s)
	for i := range sample {
		sample[i] = 1
	}
	require.NoError(t, m.AddInput(sample))
	require.False(t, m.FullyBatched())

	require.NoError(t, m.Infer())
	assert.Equal(t, 1, rt.calls)
	assert.Equal(t, shape.BatchCap*s, rt.lastLen)
	assert.Equal(t, 0, m.BufferLen())
	assert.False(t, m.FullyBatched())
}

// TestInferSurfacesRuntimeError verifies RuntimeError propagation.
func TestInferSurfacesRuntimeError(t *testing.T) {
	rt := &fakeRuntime{}
	shape := testShape()
	s := shape.PixelArea() * types.Channels
	m, err := newModel(shape, VariantDetection, s, rt)
	require.NoError(t, err)
	rt.runErr = errors.New("device lost") // fail only after warm-up has succeeded

	require.NoError(t, m.AddInput(make([]float32, s)))
	err = m.Infer()
	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.KindRuntime, te.Kind)
}
