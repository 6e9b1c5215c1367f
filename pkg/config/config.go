// Package config holds the service configuration: environment-driven
// settings and the fixed audio pipeline constants shared by the streaming
// and batch paths.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Fixed audio pipeline constants. These mirror the values the acoustic
// frontend was tuned with and are not runtime-configurable.
const (
	// SampleRate is the only supported input rate (Hz).
	SampleRate = 16000

	// BytesPerSample for s16le PCM.
	BytesPerSample = 2

	// ChunkDurationMs is the duration of one frame.
	ChunkDurationMs = 64

	// ChunkSize is the exact byte length of one frame:
	// SampleRate * BytesPerSample * ChunkDurationMs / 1000.
	ChunkSize = SampleRate * BytesPerSample * ChunkDurationMs / 1000

	// MaxAudioBufferSeconds bounds the frame ring by wall-clock age.
	MaxAudioBufferSeconds = 30

	// MaxRetainedUtterances caps finalized utterance records (FIFO).
	MaxRetainedUtterances = 3

	// VADProcessWindow is the number of frames per VAD evaluation.
	VADProcessWindow = 10

	// VADSmoothingWindow bounds the hysteresis counters.
	VADSmoothingWindow = 2

	// VADSpeechThreshold is the default engine probability cutoff used by
	// introspection endpoints and batch segmentation.
	VADSpeechThreshold = 0.6

	// Adaptive threshold bounds for the streaming VAD controller.
	VADThresholdMin  = 0.3
	VADThresholdMax  = 0.9
	VADThresholdStep = 0.1

	// TemporaryTranscriptionInterval is the tentative window size in frames.
	TemporaryTranscriptionInterval = 20

	// TentativeMaxNewTokens is the token budget for tentative ASR calls.
	TentativeMaxNewTokens = 15

	// CommittedMaxNewTokensCap bounds the committed token budget
	// (50 + 5*durationSeconds, capped here).
	CommittedMaxNewTokensCap = 200

	// MaxSegmentDuration is the longest audio span sent to the ASR engine
	// in a single call; longer utterances are split.
	MaxSegmentDuration = 30 * time.Second

	// MinCommitBytes is the smallest utterance worth committing (~200 ms).
	MinCommitBytes = 2 * ChunkSize

	// ReadTimeout is the per-receive transport deadline.
	ReadTimeout = 5 * time.Second

	// IdleTimeout closes connections with no client activity.
	IdleTimeout = 30 * time.Second

	// MaxHotwords caps the hotword list attached to an ASR call.
	MaxHotwords = 10

	// BatchConcurrency caps concurrent batch segment transcriptions.
	BatchConcurrency = 3

	// ServiceName and ServiceVersion identify the service in /health and
	// in trace resources.
	ServiceName    = "speech-to-text"
	ServiceVersion = "2.0.0"
)

// FrameDuration returns ChunkDurationMs as a time.Duration.
func FrameDuration() time.Duration {
	return ChunkDurationMs * time.Millisecond
}

// Config carries the environment-driven service settings.
type Config struct {
	Host string
	Port int

	// CheckpointPath points at the ASR model assets (or serves as a hint
	// for remote engines).
	CheckpointPath string
	// Device selects the inference device for local engines ("cuda"/"cpu").
	Device string

	LogLevel string

	UseHTTPS bool
	SSLCert  string
	SSLKey   string

	DebugAudioEnabled bool
	DebugAudioBaseDir string

	// ASREngine selects the transcription backend: "openai", "chat" or
	// "gemini".
	ASREngine string

	// VADModelPath locates the Silero ONNX model for builds with the vad
	// tag.
	VADModelPath string
}

// Load reads the configuration from the environment, applying defaults for
// anything unset.
func Load() *Config {
	return &Config{
		Host:              getEnv("HOST", "0.0.0.0"),
		Port:              getEnvInt("PORT", 8000),
		CheckpointPath:    getEnv("CHECKPOINT_PATH", "./checkpoint"),
		Device:            getEnv("DEVICE", "cuda"),
		LogLevel:          getEnv("LOG_LEVEL", "debug"),
		UseHTTPS:          getEnvBool("USE_HTTPS", false),
		SSLCert:           getEnv("SSL_CERT", "./cert.pem"),
		SSLKey:            getEnv("SSL_KEY", "./key.pem"),
		DebugAudioEnabled: getEnvBool("DEBUG_AUDIO_ENABLED", false),
		DebugAudioBaseDir: getEnv("DEBUG_AUDIO_BASE_DIR", "./debug_audio"),
		ASREngine:         getEnv("ASR_ENGINE", "openai"),
		VADModelPath:      getEnv("VAD_MODEL_PATH", "./models/silero_vad.onnx"),
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DebugEnabled reports whether verbose per-frame logging is on.
func (c *Config) DebugEnabled() bool {
	return c.LogLevel == "debug"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
