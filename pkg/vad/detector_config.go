package vad

import "fmt"

// LogLevel represents the ONNX Runtime logging level.
type LogLevel int

const (
	LogLevelVerbose LogLevel = iota + 1
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// DetectorConfig holds configuration for the Silero streaming detector.
type DetectorConfig struct {
	// Path to the Silero VAD ONNX model file.
	ModelPath string
	// Sampling rate of the input audio. Supported values are 8000 and 16000.
	SampleRate int
	// Log level for the ONNX environment, defaults to LogLevelWarn.
	LogLevel LogLevel
}

// IsValid validates the detector configuration.
func (c DetectorConfig) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}

	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("invalid SampleRate: valid values are 8000 and 16000")
	}

	return nil
}
