package vad

// DetectorInterface is the speech-probability engine behind the streaming
// controller. Implementations must be safe for concurrent use; the process
// shares one engine across all connections.
type DetectorInterface interface {
	// Infer scores one audio window and returns the speech probability.
	// samples are normalized float32 values in [-1, 1].
	// The result is in [0, 1] where higher values indicate speech.
	Infer(samples []float32) (float32, error)

	// Reset clears any internal streaming state.
	Reset() error

	// Destroy releases all resources held by the detector.
	// The detector must not be used afterwards.
	Destroy() error
}
