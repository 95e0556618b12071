package modelrt

import (
	"fmt"
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Model is the Model Adapter from spec.md §4.2: one external inference
// session plus the pending-batch buffer the dispatcher fills via AddInput
// before calling Infer.
type Model struct {
	Name  string
	Shape types.ModelShape

	variant      Variant
	elementCount int // S = W*H*Channels
	runtime      Runtime

	buffer       []float32
	fullyBatched bool
	spendMS      float32
}

// Open constructs a Model backed by "<modelDir>/<name>.onnx" and performs
// the two-warm-up-inference startup protocol: the second warm-up's
// measured time seeds spendTime (spec.md §4.2).
func Open(modelDir string, shape types.ModelShape, variant Variant) (*Model, error) {
	elementCount := shape.PixelArea() * types.Channels
	session, err := newOnnxSession(modelDir, shape.Name, shape.BatchCap, elementCount)
	if err != nil {
		return nil, types.Newf(types.KindConfig, "modelrt.open", err)
	}
	return newModel(shape, variant, elementCount, session)
}

// newModel is the Runtime-injectable constructor; tests call it directly
// with a fake Runtime to avoid loading a real ONNX session.
func newModel(shape types.ModelShape, variant Variant, elementCount int, runtime Runtime) (*Model, error) {
	m := &Model{
		Name:         shape.Name,
		Shape:        shape,
		variant:      variant,
		elementCount: elementCount,
		runtime:      runtime,
	}
	if err := m.warmup(); err != nil {
		return nil, err
	}
	return m, nil
}

// warmup runs two zeroed-input inferences; the second's duration is the
// model's initial last_spend_ms estimate, used by the dispatcher before any
// real frame has run.
func (m *Model) warmup() error {
	zero := make([]float32, m.Shape.BatchCap*m.elementCount)
	if err := m.runtime.Run(zero); err != nil {
		return types.Newf(types.KindRuntime, "modelrt.warmup.first", err)
	}
	start := time.Now()
	if err := m.runtime.Run(zero); err != nil {
		return types.Newf(types.KindRuntime, "modelrt.warmup.second", err)
	}
	m.spendMS = float32(time.Since(start).Seconds() * 1000)
	return nil
}

// AddInput appends one preprocessed sample to the pending buffer. It fails
// InputShape unless len(stream) == S, and sets fullyBatched once the
// buffer reaches B*S.
func (m *Model) AddInput(stream []float32) error {
	if len(stream) != m.elementCount {
		return types.Newf(types.KindInputShape, "modelrt.add_input",
			fmt.Errorf("stream length %d != element count %d", len(stream), m.elementCount))
	}
	m.buffer = append(m.buffer, stream...)
	if len(m.buffer) >= m.Shape.BatchCap*m.elementCount {
		m.fullyBatched = true
	}
	return nil
}

// FullyBatched reports whether the pending buffer has reached B*S.
func (m *Model) FullyBatched() bool { return m.fullyBatched }

// BufferLen reports the pending buffer's current length in elements, for
// invariant checks (spec.md §8: buffer.len() % S == 0, buffer.len() <= B*S).
func (m *Model) BufferLen() int { return len(m.buffer) }

// ElementCount is S, the flat tensor length one sample preprocesses to.
func (m *Model) ElementCount() int { return m.elementCount }

// Infer submits the pending buffer as one batch. An empty buffer is a
// silent no-op (EmptyBatch); a buffer whose length is not a multiple of S
// is an InputShape error and the buffer is left untouched for the caller
// to decide whether to retry or drop it. On success the tail is
// zero-padded to B*S, the runtime is invoked once, spendTime is updated,
// and the buffer and fullyBatched flag are cleared.
func (m *Model) Infer() error {
	if len(m.buffer) == 0 {
		logging.Debugf("modelrt: %s: infer with empty buffer, skipping", m.Name)
		return nil
	}
	if len(m.buffer)%m.elementCount != 0 {
		err := types.Newf(types.KindInputShape, "modelrt.infer",
			fmt.Errorf("buffer length %d is not a multiple of element count %d", len(m.buffer), m.elementCount))
		logging.Errorf("modelrt: %v", err)
		return err
	}

	batchLen := m.Shape.BatchCap * m.elementCount
	batch := make([]float32, batchLen)
	copy(batch, m.buffer)

	start := time.Now()
	if err := m.runtime.Run(batch); err != nil {
		return types.Newf(types.KindRuntime, "modelrt.infer", err)
	}
	m.spendMS = float32(time.Since(start).Seconds() * 1000)

	m.buffer = m.buffer[:0]
	m.fullyBatched = false
	return nil
}

// LastSpendMS returns the most recently measured infer() duration, used
// by the dispatcher for deadline feasibility checks.
func (m *Model) LastSpendMS() float32 { return m.spendMS }

// Close releases the underlying runtime session.
func (m *Model) Close() error { return m.runtime.Close() }
