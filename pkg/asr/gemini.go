package asr

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiEngine implements Engine via the Gemini API: the segment travels as
// an inline audio/wav blob next to the instruction part, with the token
// budget mapped to max_output_tokens.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine creates a Gemini transcription engine. model defaults to
// gemini-2.0-flash when empty.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "Gemini API key is required",
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "failed to create Gemini client",
			Err:     err,
		}
	}

	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiEngine{
		client: client,
		model:  model,
	}, nil
}

// Name returns the engine name.
func (g *GeminiEngine) Name() string {
	return "gemini"
}

// Transcribe sends the PCM segment as an inline WAV blob.
func (g *GeminiEngine) Transcribe(ctx context.Context, pcm []byte, cfg RecognitionConfig) (*RecognitionResult, error) {
	if len(pcm) == 0 {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "audio data is empty",
		}
	}

	wavData := audio.EncodeWAV(pcm, config.SampleRate, 1)

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromText(BuildInstruction(cfg.Hotwords)),
			genai.NewPartFromBytes(wavData, "audio/wav"),
		},
	}}

	genCfg := &genai.GenerateContentConfig{}
	if cfg.MaxNewTokens > 0 {
		genCfg.MaxOutputTokens = int32(cfg.MaxNewTokens)
	}
	if cfg.Temperature > 0 {
		temp := cfg.Temperature
		genCfg.Temperature = &temp
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "Gemini request failed",
			Err:     err,
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "Gemini returned no candidates",
		}
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
		}
	}

	return &RecognitionResult{
		Text:      strings.TrimSpace(sb.String()),
		Duration:  audio.PCMDuration(len(pcm), config.SampleRate),
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"model": g.model,
		},
	}, nil
}

// Close releases any resources held by the engine.
func (g *GeminiEngine) Close() error {
	return nil
}

var _ Engine = (*GeminiEngine)(nil)
