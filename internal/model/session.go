package model

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// runner executes one forward pass over a flat input tensor.
type runner interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
	Close()
}

// Session wraps an ONNX Runtime session bound to pre-allocated tensors.
// Run calls are serialized since the tensors are shared.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputSize    int
}

// NewSession opens modelPath. The ONNX Runtime environment must already be
// initialized, see NewRuntime.
func NewSession(modelPath string, meta Metadata) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("failed to stat model: %w", err)
	}

	inputName, outputName, err := tensorNames(modelPath, meta)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputSize:    meta.InputSize(),
	}, nil
}

// tensorNames prefers the names from metadata and falls back to the first
// input and output declared by the model.
func tensorNames(modelPath string, meta Metadata) (string, string, error) {
	if meta.InputName != "" && meta.OutputName != "" {
		return meta.InputName, meta.OutputName, nil
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to inspect model %s: %w", modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return "", "", fmt.Errorf("model %s declares no inputs or outputs", modelPath)
	}

	inputName, outputName := meta.InputName, meta.OutputName
	if inputName == "" {
		inputName = inputs[0].Name
	}
	if outputName == "" {
		outputName = outputs[0].Name
	}
	return inputName, outputName, nil
}

// Run copies input into the bound tensor and returns a copy of the output.
func (s *Session) Run(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != s.inputSize {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrShapeMismatch, s.inputSize, len(input))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := s.outputTensor.GetData()
	out := make([]float32, len(outputData))
	copy(out, outputData)
	return out, nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// Runtime owns the process wide ONNX Runtime environment.
type Runtime struct {
	once sync.Once
}

// NewRuntime initializes ONNX Runtime, loading the shared library from
// libraryPath when it is not empty.
func NewRuntime(libraryPath string) (*Runtime, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return &Runtime{}, nil
}

func (r *Runtime) Close() {
	r.once.Do(func() {
		ort.DestroyEnvironment()
	})
}
