package protocol

// HealthModels reports engine availability in /health.
type HealthModels struct {
	ASRLoaded bool `json:"asr_loaded"`
	VADLoaded bool `json:"vad_loaded"`
}

// HealthConfiguration reports live pipeline settings in /health.
type HealthConfiguration struct {
	SampleRate        int  `json:"sample_rate"`
	ChunkDurationMs   int  `json:"chunk_duration_ms"`
	MaxBufferSeconds  int  `json:"max_buffer_seconds"`
	VADEnabled        bool `json:"vad_enabled"`
	ActiveConnections int  `json:"active_connections"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status        string              `json:"status"`
	Service       string              `json:"service"`
	Version       string              `json:"version"`
	Timestamp     float64             `json:"timestamp"`
	Models        HealthModels        `json:"models"`
	Configuration HealthConfiguration `json:"configuration"`
}

// DebugAudioProcessing is the audio block of /debug/config.
type DebugAudioProcessing struct {
	ChunkDurationMs  int `json:"chunk_duration_ms"`
	ChunkSizeBytes   int `json:"chunk_size_bytes"`
	MaxBufferSeconds int `json:"max_buffer_seconds"`
}

// DebugVADConfiguration is the VAD block of /debug/config.
type DebugVADConfiguration struct {
	SmoothingWindow      int     `json:"smoothing_window"`
	SpeechThreshold      float64 `json:"speech_threshold"`
	ProcessingIntervalMs int     `json:"processing_interval_ms"`
}

// DebugTranscriptionConfiguration is the transcription block of
// /debug/config.
type DebugTranscriptionConfiguration struct {
	TemporaryIntervalChunks int     `json:"temporary_interval_chunks"`
	MaxSegmentDuration      float64 `json:"max_segment_duration"`
}

// DebugConfigResponse is the /debug/config payload.
type DebugConfigResponse struct {
	APIBaseURL      string                          `json:"api_base_url"`
	WebSocketURL    string                          `json:"websocket_url"`
	AudioProcessing DebugAudioProcessing            `json:"audio_processing"`
	VAD             DebugVADConfiguration           `json:"vad_configuration"`
	Transcription   DebugTranscriptionConfiguration `json:"transcription_configuration"`
}

// VADStatusConfiguration is the configuration block of /vad/status.
type VADStatusConfiguration struct {
	SmoothingWindow int     `json:"smoothing_window"`
	SpeechThreshold float64 `json:"speech_threshold"`
	ProcessWindow   int     `json:"process_window"`
	ThresholdMin    float64 `json:"threshold_min"`
	ThresholdMax    float64 `json:"threshold_max"`
}

// VADStatusResponse is the /vad/status payload. TestProbability is the
// engine's output for a silent probe window.
type VADStatusResponse struct {
	Status          string                 `json:"status"`
	Engine          string                 `json:"engine"`
	Configuration   VADStatusConfiguration `json:"configuration"`
	TestProbability float64                `json:"test_probability"`
}

// VADConfigResponse answers POST /vad/config.
type VADConfigResponse struct {
	Status  string           `json:"status"`
	Config  VADConfigPayload `json:"config"`
	Message string           `json:"message"`
}

// ErrorResponse is the generic HTTP error payload.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
