package asr

import (
	"context"
	"sync"
	"time"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// MockCall records the arguments of one Transcribe invocation.
type MockCall struct {
	PCM    []byte
	Config RecognitionConfig
}

// MockEngine is an Engine for tests. Behavior is customized through
// TranscribeFunc; calls are recorded for verification.
type MockEngine struct {
	// TranscribeFunc is called when Transcribe is invoked. If nil, an empty
	// transcript is returned.
	TranscribeFunc func(ctx context.Context, pcm []byte, cfg RecognitionConfig) (*RecognitionResult, error)

	// Calls records every Transcribe invocation.
	Calls []MockCall

	CloseCalled bool

	mu sync.Mutex
}

// NewMockEngine creates a MockEngine with default behavior.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// NewMockEngineWithText creates a MockEngine returning a fixed transcript.
func NewMockEngineWithText(text string) *MockEngine {
	return &MockEngine{
		TranscribeFunc: func(ctx context.Context, pcm []byte, cfg RecognitionConfig) (*RecognitionResult, error) {
			return &RecognitionResult{
				Text:      text,
				Duration:  audio.PCMDuration(len(pcm), config.SampleRate),
				Timestamp: time.Now(),
			}, nil
		},
	}
}

// Name returns the engine name.
func (m *MockEngine) Name() string {
	return "mock"
}

// Transcribe implements Engine.
func (m *MockEngine) Transcribe(ctx context.Context, pcm []byte, cfg RecognitionConfig) (*RecognitionResult, error) {
	m.mu.Lock()
	// Copy because callers may reuse the buffer.
	pcmCopy := make([]byte, len(pcm))
	copy(pcmCopy, pcm)
	m.Calls = append(m.Calls, MockCall{PCM: pcmCopy, Config: cfg})
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, pcm, cfg)
	}
	return &RecognitionResult{
		Text:      "",
		Duration:  audio.PCMDuration(len(pcm), config.SampleRate),
		Timestamp: time.Now(),
	}, nil
}

// Close implements Engine.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return nil
}

// CallCount returns the number of times Transcribe was called.
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent recorded call, or nil when none.
func (m *MockEngine) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	call := m.Calls[len(m.Calls)-1]
	return &call
}

var _ Engine = (*MockEngine)(nil)
