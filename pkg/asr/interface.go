// Package asr provides a unified interface for the transcription engines
// behind the streaming and batch paths. Engines accept a complete segment of
// raw 16 kHz mono s16le PCM and return plain transcript text; remote
// providers (OpenAI Whisper, audio-capable chat models, Gemini) are wrapped
// behind the same Engine interface so the pipeline never cares which one is
// configured.
package asr

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/voxstream/voxstream/pkg/config"
)

// RecognitionResult represents the output of one transcription call.
type RecognitionResult struct {
	// Text is the recognized transcript.
	Text string

	// Duration of the audio segment that was transcribed.
	Duration time.Duration

	// Timestamp when recognition completed.
	Timestamp time.Time

	// Additional engine-specific metadata.
	Metadata map[string]interface{}
}

// RecognitionConfig contains per-call settings for transcription.
type RecognitionConfig struct {
	// Language code (e.g. "en", "zh"). Empty lets the engine decide.
	Language string

	// MaxNewTokens bounds the generated transcript length. Zero means the
	// engine default. Engines whose API has no token budget record the
	// requested value in result metadata instead.
	MaxNewTokens int

	// Hotwords bias recognition toward domain terms. Normalized and turned
	// into an instruction suffix before the call.
	Hotwords []string

	// Temperature for sampling (0.0-1.0).
	Temperature float32
}

// Engine is the interface all transcription backends implement. Engines
// must be safe for concurrent use; one instance is shared by every session
// and batch job.
type Engine interface {
	// Name returns the engine name (e.g. "openai-whisper").
	Name() string

	// Transcribe runs recognition over a complete PCM segment.
	Transcribe(ctx context.Context, pcm []byte, config RecognitionConfig) (*RecognitionResult, error)

	// Close releases any resources held by the engine.
	Close() error
}

// NewEngine builds the transcription engine selected by cfg.ASREngine.
// Credentials come from the environment (OPENAI_API_KEY, GEMINI_API_KEY).
func NewEngine(ctx context.Context, cfg *config.Config) (Engine, error) {
	switch cfg.ASREngine {
	case "", "openai", "whisper":
		return NewWhisperEngine(os.Getenv("OPENAI_API_KEY"), "")
	case "chat":
		return NewChatEngine(os.Getenv("OPENAI_API_KEY"), "")
	case "gemini":
		return NewGeminiEngine(ctx, os.Getenv("GEMINI_API_KEY"), "")
	default:
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: fmt.Sprintf("unknown ASR engine %q", cfg.ASREngine),
		}
	}
}

// Error types for transcription operations
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeAuthenticationFailed
	ErrCodeNetworkError
	ErrCodeProviderError
)
