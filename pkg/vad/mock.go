package vad

import "sync"

// MockDetector is a DetectorInterface for tests. Behavior is customized
// through InferFunc; calls are recorded for verification.
type MockDetector struct {
	// InferFunc is called when Infer is invoked. If nil, Infer returns 0
	// (no speech).
	InferFunc func(samples []float32) (float32, error)

	// InferCalls records the samples of every Infer call.
	InferCalls [][]float32

	ResetCalled   bool
	DestroyCalled bool

	mu sync.Mutex
}

// NewMockDetector creates a MockDetector with default behavior.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		InferCalls: make([][]float32, 0),
	}
}

// NewMockDetectorWithProb creates a MockDetector returning a fixed
// probability.
func NewMockDetectorWithProb(prob float32) *MockDetector {
	return &MockDetector{
		InferFunc: func(samples []float32) (float32, error) {
			return prob, nil
		},
		InferCalls: make([][]float32, 0),
	}
}

// NewMockDetectorWithSequence creates a MockDetector that returns the given
// probabilities in order, cycling back to the start when exhausted.
func NewMockDetectorWithSequence(probs []float32) *MockDetector {
	idx := 0
	return &MockDetector{
		InferFunc: func(samples []float32) (float32, error) {
			if len(probs) == 0 {
				return 0, nil
			}
			prob := probs[idx]
			idx = (idx + 1) % len(probs)
			return prob, nil
		},
		InferCalls: make([][]float32, 0),
	}
}

// Infer implements DetectorInterface.
func (m *MockDetector) Infer(samples []float32) (float32, error) {
	m.mu.Lock()
	// Copy because callers may reuse the slice.
	samplesCopy := make([]float32, len(samples))
	copy(samplesCopy, samples)
	m.InferCalls = append(m.InferCalls, samplesCopy)
	m.mu.Unlock()

	if m.InferFunc != nil {
		return m.InferFunc(samples)
	}
	return 0.0, nil
}

// Reset implements DetectorInterface.
func (m *MockDetector) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalled = true
	return nil
}

// Destroy implements DetectorInterface.
func (m *MockDetector) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCalled = true
	return nil
}

// GetInferCallCount returns the number of times Infer was called.
func (m *MockDetector) GetInferCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InferCalls)
}

var _ DetectorInterface = (*MockDetector)(nil)
