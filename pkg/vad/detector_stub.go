//go:build !vad

package vad

import "fmt"

var errNoSilero = fmt.Errorf("silero VAD support is not built in, rebuild with '-tags vad' and ensure ONNX Runtime is installed")

// InitRuntime is a stub for builds without the 'vad' tag.
func InitRuntime(libraryPath string) error {
	return errNoSilero
}

// DestroyRuntime is a stub for builds without the 'vad' tag.
func DestroyRuntime() error {
	return nil
}

// Detector is a stub for builds without the 'vad' tag. NewDetector always
// fails; callers fall back to the energy engine.
type Detector struct{}

// NewDetector returns an error indicating that silero support is not built in.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	return nil, errNoSilero
}

// Infer implements DetectorInterface for the stub.
func (d *Detector) Infer(samples []float32) (float32, error) {
	return 0, errNoSilero
}

// Reset implements DetectorInterface for the stub.
func (d *Detector) Reset() error {
	return errNoSilero
}

// Destroy implements DetectorInterface for the stub.
func (d *Detector) Destroy() error {
	return errNoSilero
}

var _ DetectorInterface = (*Detector)(nil)
