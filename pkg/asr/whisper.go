package asr

import (
	"bytes"
	"context"
	"log"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// WhisperEngine implements Engine using the OpenAI transcription API. The
// endpoint may be api.openai.com or any OpenAI-compatible inference server
// (set OPENAI_BASE_URL).
type WhisperEngine struct {
	client *openai.Client
	model  string
}

// NewWhisperEngine creates a Whisper transcription engine. model defaults
// to whisper-1 when empty.
func NewWhisperEngine(apiKey, model string) (*WhisperEngine, error) {
	if apiKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		clientConfig.BaseURL = baseURL
		log.Printf("[Whisper ASR] Using BaseURL: %s", clientConfig.BaseURL)
	}

	if model == "" {
		model = openai.Whisper1
	}

	return &WhisperEngine{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Name returns the engine name.
func (w *WhisperEngine) Name() string {
	return "openai-whisper"
}

// Transcribe sends the PCM segment to the transcription endpoint. The raw
// samples are wrapped into an in-memory WAV file because the API only
// accepts containerized audio.
func (w *WhisperEngine) Transcribe(ctx context.Context, pcm []byte, cfg RecognitionConfig) (*RecognitionResult, error) {
	if len(pcm) == 0 {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "audio data is empty",
		}
	}

	wavData := audio.EncodeWAV(pcm, config.SampleRate, 1)

	req := openai.AudioRequest{
		Model:    w.model,
		FilePath: "audio.wav", // filename hint for the multipart upload
		Reader:   bytes.NewReader(wavData),
		Language: cfg.Language,
	}
	if len(cfg.Hotwords) > 0 {
		// The transcription API has no hotword field; the instruction goes
		// through the prompt instead.
		req.Prompt = BuildInstruction(cfg.Hotwords)
	}
	if cfg.Temperature > 0 {
		req.Temperature = cfg.Temperature
	}

	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "Whisper API request failed",
			Err:     err,
		}
	}

	result := &RecognitionResult{
		Text:      resp.Text,
		Duration:  audio.PCMDuration(len(pcm), config.SampleRate),
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"model": w.model,
		},
	}
	if cfg.MaxNewTokens > 0 {
		// The transcription API does not enforce a token budget.
		result.Metadata["max_new_tokens"] = cfg.MaxNewTokens
	}

	return result, nil
}

// Close releases any resources held by the engine.
func (w *WhisperEngine) Close() error {
	return nil
}

var _ Engine = (*WhisperEngine)(nil)
