package asr

import (
	"context"
	"encoding/base64"
	"log"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

const defaultChatModel = "gpt-4o-audio-preview"

// ChatEngine implements Engine through an audio-capable chat completion
// model: the segment is sent as an input_audio content part next to the
// transcription instruction. Unlike the Whisper API this path honors the
// token budget directly via max_completion_tokens.
type ChatEngine struct {
	client openai.Client
	model  string
}

// NewChatEngine creates a chat-completion transcription engine. model
// defaults to gpt-4o-audio-preview when empty.
func NewChatEngine(apiKey, model string) (*ChatEngine, error) {
	if apiKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		log.Printf("[Chat ASR] Using BaseURL: %s", baseURL)
	}

	if model == "" {
		model = defaultChatModel
	}

	return &ChatEngine{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Name returns the engine name.
func (e *ChatEngine) Name() string {
	return "openai-chat"
}

// Transcribe sends the PCM segment as base64 WAV inside a chat completion.
func (e *ChatEngine) Transcribe(ctx context.Context, pcm []byte, cfg RecognitionConfig) (*RecognitionResult, error) {
	if len(pcm) == 0 {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "audio data is empty",
		}
	}

	wavData := audio.EncodeWAV(pcm, config.SampleRate, 1)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(BuildInstruction(cfg.Hotwords)),
		openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   base64.StdEncoding.EncodeToString(wavData),
			Format: "wav",
		}),
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: parts,
				},
			},
		}},
	}
	if cfg.MaxNewTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(cfg.MaxNewTokens))
	}
	if cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(cfg.Temperature))
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "chat completion request failed",
			Err:     err,
		}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "chat completion returned no choices",
		}
	}
	choice := resp.Choices[0]

	return &RecognitionResult{
		Text:      strings.TrimSpace(choice.Message.Content),
		Duration:  audio.PCMDuration(len(pcm), config.SampleRate),
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"model":         e.model,
			"finish_reason": string(choice.FinishReason),
		},
	}, nil
}

// Close releases any resources held by the engine.
func (e *ChatEngine) Close() error {
	return nil
}

var _ Engine = (*ChatEngine)(nil)
