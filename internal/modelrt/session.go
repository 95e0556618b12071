// Package modelrt implements the Model Adapter (spec.md §4.2): a thin
// wrapper around an external ONNX Runtime session exposing the fixed-batch
// inference primitive plus metadata the dispatcher needs (element count,
// batch cap, last measured execution time). Grounded on the ONNX Runtime
// session lifecycle shown in other_examples/.../uopensail-longmen/ranker.go
// (load once, run many times, explicit teardown), adapted from that
// repo's hand-written C-API calls to the github.com/yalue/onnxruntime_go
// binding. That binding, like gocv, is built with cgo and loads the ONNX
// Runtime shared library at run time.
package modelrt

import (
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Runtime is the opaque external inference runtime boundary described in
// spec.md §6: session construction from a path, run over a fixed-shape
// batch, graceful teardown. onnxSession is the production implementation;
// tests substitute a fake.
type Runtime interface {
	// Run submits one zero-padded [BatchCap*ElementCount] batch and
	// blocks until the runtime returns. Label decoding is out of scope
	// (spec.md §1) — the core never inspects the result.
	Run(batch []float32) error
	Close() error
}

var envOnce sync.Once
var envErr error

// ensureEnvironment initializes the process-wide ONNX Runtime environment
// exactly once, regardless of how many models are constructed.
func ensureEnvironment() error {
	envOnce.Do(func() {
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

type onnxSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// newOnnxSession loads "<modelDir>/<name>.onnx" and allocates the
// fixed-shape [batchCap, elementCount] input/output tensors the model
// reuses for every inference call in the process lifetime (spec.md §4.2:
// "submits one batch... zero-padded to B*S").
func newOnnxSession(modelDir, name string, batchCap, elementCount int) (*onnxSession, error) {
	if err := ensureEnvironment(); err != nil {
		return nil, fmt.Errorf("onnxruntime environment: %w", err)
	}
	path := filepath.Join(modelDir, name+".onnx")

	shape := ort.NewShape(int64(batchCap), int64(elementCount))
	input, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor for %q: %w", name, err)
	}
	output, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor for %q: %w", name, err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("load model %q: %w", path, err)
	}

	return &onnxSession{session: session, input: input, output: output}, nil
}

func (s *onnxSession) Run(batch []float32) error {
	copy(s.input.GetData(), batch)
	return s.session.Run()
}

func (s *onnxSession) Close() error {
	s.input.Destroy()
	s.output.Destroy()
	return s.session.Destroy()
}
