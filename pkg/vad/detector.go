//go:build vad

package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	stateLen   = 2 * 1 * 128
	contextLen = 64
)

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime initializes the ONNX runtime environment. libraryPath can be
// empty to use auto-detection, or point at libonnxruntime.so. Call once at
// startup before creating detectors.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	} else {
		if libPath := findONNXRuntimeLibrary(); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	runtimeInitialized = true
	return nil
}

// DestroyRuntime destroys the ONNX runtime environment. Call once at
// application shutdown.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX runtime: %w", err)
	}

	runtimeInitialized = false
	return nil
}

// findONNXRuntimeLibrary checks ONNXRUNTIME_LIB, the system library
// directories and the dynamic loader paths for the ONNX Runtime library.
func findONNXRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}

	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}

	if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
		for _, dir := range filepath.SplitList(dyldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.dylib"))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// Detector scores audio windows with the Silero VAD model. One instance is
// shared by all connections; Infer serializes access because the model
// carries LSTM state between calls.
type Detector struct {
	session *ort.DynamicAdvancedSession

	cfg DetectorConfig

	mu sync.Mutex
	// RNN state (h, c) for the LSTM layers
	state [stateLen]float32
	// Context samples carried between windows
	ctx [contextLen]float32
	// currSample tracks total samples processed. On the first inference
	// (currSample == 0) no context is prepended.
	currSample int

	inputNames  []string
	outputNames []string
}

// NewDetector creates a detector for the given configuration, initializing
// the ONNX runtime on first use.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runtimeMu.Lock()
	initialized := runtimeInitialized
	runtimeMu.Unlock()
	if !initialized {
		if err := InitRuntime(""); err != nil {
			return nil, fmt.Errorf("ONNX runtime not initialized: %w", err)
		}
	}

	d := &Detector{
		cfg:         cfg,
		inputNames:  []string{"input", "state", "sr"},
		outputNames: []string{"output", "stateN"},
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("failed to set graph optimization level: %w", err)
	}
	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		d.inputNames,
		d.outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	d.session = session
	return d, nil
}

// Infer runs inference on one window and returns the speech probability.
// samples are normalized float32 values in [-1, 1].
func (d *Detector) Infer(samples []float32) (float32, error) {
	if d == nil {
		return 0, fmt.Errorf("invalid nil detector")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Prepend the carried context for continuity, except on the first call.
	pcm := samples
	if d.currSample > 0 {
		pcm = append(d.ctx[:], samples...)
	}
	if len(samples) >= contextLen {
		copy(d.ctx[:], samples[len(samples)-contextLen:])
	}
	d.currSample += len(samples)

	inputShape := ort.NewShape(1, int64(len(pcm)))
	inputTensor, err := ort.NewTensor(inputShape, pcm)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateShape := ort.NewShape(2, 1, 128)
	stateTensor, err := ort.NewTensor(stateShape, d.state[:])
	if err != nil {
		return 0, fmt.Errorf("failed to create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srShape := ort.NewShape(1)
	srData := []int64{int64(d.cfg.SampleRate)}
	srTensor, err := ort.NewTensor(srShape, srData)
	if err != nil {
		return 0, fmt.Errorf("failed to create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputShape := ort.NewShape(1, 1)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	stateNShape := ort.NewShape(2, 1, 128)
	stateNTensor, err := ort.NewEmptyTensor[float32](stateNShape)
	if err != nil {
		return 0, fmt.Errorf("failed to create stateN tensor: %w", err)
	}
	defer stateNTensor.Destroy()

	inputs := []ort.Value{inputTensor, stateTensor, srTensor}
	outputs := []ort.Value{outputTensor, stateNTensor}

	if err := d.session.Run(inputs, outputs); err != nil {
		return 0, fmt.Errorf("failed to run inference: %w", err)
	}

	copy(d.state[:], stateNTensor.GetData())

	outputData := outputTensor.GetData()
	if len(outputData) == 0 {
		return 0, fmt.Errorf("empty output from inference")
	}

	return outputData[0], nil
}

// Reset clears the LSTM state and context carried between windows.
func (d *Detector) Reset() error {
	if d == nil {
		return fmt.Errorf("invalid nil detector")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range stateLen {
		d.state[i] = 0
	}
	for i := range contextLen {
		d.ctx[i] = 0
	}
	d.currSample = 0

	return nil
}

// Destroy releases the inference session. The detector must not be used
// afterwards.
func (d *Detector) Destroy() error {
	if d == nil {
		return fmt.Errorf("invalid nil detector")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		d.session = nil
	}

	return nil
}

var _ DetectorInterface = (*Detector)(nil)
