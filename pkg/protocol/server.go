package protocol

import (
	"github.com/voxstream/voxstream/pkg/config"
)

// Features advertises server capabilities in the greeting.
type Features struct {
	TieredOutput         bool `json:"tiered_output"`
	LowLatency           bool `json:"low_latency"`
	VADSeparation        bool `json:"vad_separation"`
	ChunkBasedProcessing bool `json:"chunk_based_processing"`
	DebugAudio           bool `json:"debug_audio"`
}

// SessionConfiguration echoes the fixed pipeline parameters in the greeting.
type SessionConfiguration struct {
	AudioChunkDurationMs           int     `json:"audio_chunk_duration_ms"`
	VADSmoothingWindow             int     `json:"vad_smoothing_window"`
	TemporaryTranscriptionInterval int     `json:"temporary_transcription_interval"`
	MaxSegmentDuration             float64 `json:"max_segment_duration"`
}

// ConnectionEstablished greets a new session.
type ConnectionEstablished struct {
	Type          MessageType          `json:"type"`
	ClientID      string               `json:"client_id"`
	ServerTime    float64              `json:"server_time"`
	Message       string               `json:"message"`
	Features      Features             `json:"features"`
	Configuration SessionConfiguration `json:"configuration"`
}

// NewConnectionEstablished builds the greeting for clientID. debugAudio
// reports whether session audio archival is active.
func NewConnectionEstablished(clientID string, debugAudio bool) *ConnectionEstablished {
	return &ConnectionEstablished{
		Type:       MessageTypeConnectionEstablished,
		ClientID:   clientID,
		ServerTime: UnixNow(),
		Message:    "WebSocket connection established",
		Features: Features{
			TieredOutput:         true,
			LowLatency:           true,
			VADSeparation:        true,
			ChunkBasedProcessing: true,
			DebugAudio:           debugAudio,
		},
		Configuration: SessionConfiguration{
			AudioChunkDurationMs:           config.ChunkDurationMs,
			VADSmoothingWindow:             config.VADSmoothingWindow,
			TemporaryTranscriptionInterval: config.TemporaryTranscriptionInterval,
			MaxSegmentDuration:             config.MaxSegmentDuration.Seconds(),
		},
	}
}

// TentativeOutput is a low-latency provisional transcript over the most
// recent window of an open utterance.
type TentativeOutput struct {
	Type         MessageType `json:"type"`
	CurrentText  string      `json:"current_text"`
	Text         string      `json:"text"`
	StartChunkID int64       `json:"start_chunk_id"`
	EndChunkID   int64       `json:"end_chunk_id"`
	Duration     float64     `json:"duration"`
	Timestamp    float64     `json:"timestamp"`
	ClientID     string      `json:"client_id"`
	Confidence   string      `json:"confidence"`
	// ProcessingDelay is seconds between the newest frame's capture and
	// this message.
	ProcessingDelay float64 `json:"processing_delay"`
}

// CommittedOutput is the final transcript of one utterance segment.
type CommittedOutput struct {
	Type         MessageType `json:"type"`
	Text         string      `json:"text"`
	SegmentID    string      `json:"segment_id"`
	StartChunkID int64       `json:"start_chunk_id"`
	EndChunkID   int64       `json:"end_chunk_id"`
	StartTime    float64     `json:"start_time"`
	EndTime      float64     `json:"end_time"`
	Duration     float64     `json:"duration"`
	Timestamp    float64     `json:"timestamp"`
	ClientID     string      `json:"client_id"`
	Confidence   string      `json:"confidence"`
	// AudioLength is the PCM byte count behind this transcript.
	AudioLength int `json:"audio_length"`
}

// Pong answers a client ping.
type Pong struct {
	Type      MessageType `json:"type"`
	Timestamp float64     `json:"timestamp"`
	ClientID  string      `json:"client_id"`
}

// NewPong builds a pong for clientID.
func NewPong(clientID string) *Pong {
	return &Pong{
		Type:      MessageTypePong,
		Timestamp: UnixNow(),
		ClientID:  clientID,
	}
}

// AudioConfig describes the expected input format in state snapshots.
type AudioConfig struct {
	SampleRate      int `json:"sample_rate"`
	Channels        int `json:"channels"`
	BitDepth        int `json:"bit_depth"`
	ChunkDurationMs int `json:"chunk_duration_ms"`
}

// DefaultAudioConfig returns the only supported input format.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:      config.SampleRate,
		Channels:        1,
		BitDepth:        config.BytesPerSample * 8,
		ChunkDurationMs: config.ChunkDurationMs,
	}
}

// ConnectionState is the answer to a get_state request.
type ConnectionState struct {
	Type          MessageType `json:"type"`
	ClientID      string      `json:"client_id"`
	BufferSize    int         `json:"buffer_size"`
	ActiveSegment bool        `json:"active_segment"`
	VADState      bool        `json:"vad_state"`
	LastChunkID   int64       `json:"last_chunk_id"`
	Timestamp     float64     `json:"timestamp"`
	AudioConfig   AudioConfig `json:"audio_config"`
}

// ConfigUpdated confirms an applied vad_config request.
type ConfigUpdated struct {
	Type      MessageType      `json:"type"`
	Config    VADConfigPayload `json:"config"`
	Message   string           `json:"message"`
	Timestamp float64          `json:"timestamp"`
}

// NewConfigUpdated builds the confirmation echoing the accepted config.
func NewConfigUpdated(cfg VADConfigPayload) *ConfigUpdated {
	return &ConfigUpdated{
		Type:      MessageTypeConfigUpdated,
		Config:    cfg,
		Message:   "VAD configuration updated",
		Timestamp: UnixNow(),
	}
}

// DebugAudioInfo tells the client that its audio is being archived.
type DebugAudioInfo struct {
	Type      MessageType `json:"type"`
	Enabled   bool        `json:"enabled"`
	SessionID string      `json:"session_id"`
	FilePath  string      `json:"file_path"`
	Message   string      `json:"message"`
}

// NewDebugAudioInfo builds the archival notice for one session recording.
func NewDebugAudioInfo(sessionID, filePath string) *DebugAudioInfo {
	return &DebugAudioInfo{
		Type:      MessageTypeDebugAudioInfo,
		Enabled:   true,
		SessionID: sessionID,
		FilePath:  filePath,
		Message:   "Audio is being archived for debugging",
	}
}

// ErrorMessage reports a session-level error to the client.
type ErrorMessage struct {
	Type      MessageType `json:"type"`
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	ClientID  string      `json:"client_id"`
	Timestamp float64     `json:"timestamp"`
}

// NewErrorMessage builds an error message for clientID.
func NewErrorMessage(code int, message, clientID string) *ErrorMessage {
	return &ErrorMessage{
		Type:      MessageTypeError,
		Code:      code,
		Message:   message,
		ClientID:  clientID,
		Timestamp: UnixNow(),
	}
}
