package detections

import (
	"errors"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// InitializeRuntime points onnxruntime_go at the shared library and sets up
// the global environment. It must run before any NewModelSession call.
func InitializeRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return newError("runtime", ErrLoad, err)
	}
	return nil
}

func DestroyRuntime() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// ModelSession owns one ONNX session together with the tensors bound to it.
// A session is not safe for concurrent Run calls; use a pool.
type ModelSession struct {
	Session  *ort.AdvancedSession
	Input    *ort.Tensor[float32]
	Output   *ort.Tensor[float32]
	Metadata Metadata
}

func NewModelSession(modelPath string, meta Metadata, threads int) (*ModelSession, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, newError("load", ErrLoad, fmt.Errorf("model file %s: %w", modelPath, err))
	}
	if err := CheckCustomObjects(meta.CustomObjects); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, newError("load", ErrLoad, fmt.Errorf("create session options: %w", err))
	}
	defer options.Destroy()

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			return nil, newError("load", ErrLoad, err)
		}
		if err := options.SetInterOpNumThreads(threads); err != nil {
			return nil, newError("load", ErrLoad, err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, newError("load", ErrLoad, fmt.Errorf("create input tensor: %w", err))
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, newError("load", ErrLoad, fmt.Errorf("create output tensor: %w", err))
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{meta.InputName},
		[]string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, newError("load", ErrLoad, fmt.Errorf("create session: %w", err))
	}

	return &ModelSession{
		Session:  session,
		Input:    inputTensor,
		Output:   outputTensor,
		Metadata: meta,
	}, nil
}

// Run copies input into the bound tensor, runs the graph and returns a copy
// of the output.
func (m *ModelSession) Run(input []float32) ([]float32, error) {
	dst := m.Input.GetData()
	if len(input) != len(dst) {
		return nil, newError("inference", ErrInference,
			fmt.Errorf("input length %d, model expects %d", len(input), len(dst)))
	}
	copy(dst, input)

	if err := m.Session.Run(); err != nil {
		return nil, newError("inference", ErrInference, err)
	}

	src := m.Output.GetData()
	if len(src) == 0 {
		return nil, newError("inference", ErrInference, errors.New("empty model output"))
	}
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}
