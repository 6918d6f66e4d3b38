package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"kartd/internal/vision"
)

// The onnxruntime environment is process-wide. It is created on first use
// and kept until ShutdownRuntime, normally only at process exit.
var (
	runtimeMu    sync.Mutex
	runtimeReady bool
)

// InitRuntime initialises onnxruntime once. libPath selects the shared
// library; it is only honoured by the first successful call.
func InitRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeReady {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	runtimeReady = true
	return nil
}

// ShutdownRuntime releases the onnxruntime environment. Sessions must be
// closed first.
func ShutdownRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !runtimeReady {
		return nil
	}
	runtimeReady = false
	return ort.DestroyEnvironment()
}

// session is one AdvancedSession with its bound input and output tensors.
// Run calls are serialised because the tensors are shared.
type session struct {
	mu     sync.Mutex
	sess   *ort.AdvancedSession
	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]
}

// newSession discovers the graph's single input and output and binds
// tensors for them. Dynamic dimensions are fixed to batch 1; inputSize,
// when positive, fills dynamic spatial dimensions.
func newSession(path string, inputSize int) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 input and 1 output, got %d and %d", path, len(inputs), len(outputs))
	}
	inShape := concreteShape(inputs[0].Dimensions, inputSize)
	if err := checkNHWC(inShape); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	outShape := concreteShape(outputs[0].Dimensions, 0)

	input, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	sess, err := ort.NewAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session for %s: %w", path, err)
	}
	return &session{sess: sess, input: input, output: output}, nil
}

func (s *session) inputShape() []int64  { return append([]int64(nil), s.input.GetShape()...) }
func (s *session) outputShape() []int64 { return append([]int64(nil), s.output.GetShape()...) }

// run copies data in, executes the graph and returns a copy of the output.
func (s *session) run(data []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, fmt.Errorf("session closed")
	}
	copy(s.input.GetData(), data)
	if err := s.sess.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), s.output.GetData()...), nil
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	var firstErr error
	if err := s.sess.Destroy(); err != nil {
		firstErr = err
	}
	if err := s.input.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.output.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.sess = nil
	return firstErr
}

// concreteShape replaces dynamic (non-positive) dimensions. The leading one
// is the batch axis and becomes 1; others take fill when it is positive.
func concreteShape(dims ort.Shape, fill int) ort.Shape {
	out := make([]int64, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			out[i] = d
		case i == 0 || fill <= 0:
			out[i] = 1
		default:
			out[i] = int64(fill)
		}
	}
	return ort.NewShape(out...)
}

// checkNHWC rejects inputs that are not (batch, height, width, channels)
// with RGB channels last. A channels-first graph has the same element count
// and would silently receive transposed data.
func checkNHWC(shape ort.Shape) error {
	if len(shape) != 4 || shape[3] != vision.Channels {
		return fmt.Errorf("input shape %v is not NHWC with %d channels", []int64(shape), vision.Channels)
	}
	return nil
}
