// Package protocol defines the wire messages of the transcription service:
// the WebSocket session protocol (JSON text frames in both directions), the
// NDJSON records of the batch endpoint and the payloads of the HTTP
// introspection endpoints.
//
// All timestamps travel as unix seconds with fractions, matching what
// browser and Python clients expect.
package protocol

import "time"

// MessageType discriminates JSON messages on the "type" field.
type MessageType string

// Server to client.
const (
	MessageTypeConnectionEstablished MessageType = "connection_established"
	MessageTypeTentativeOutput       MessageType = "tentative_output"
	MessageTypeCommittedOutput       MessageType = "committed_output"
	MessageTypePong                  MessageType = "pong"
	MessageTypeConnectionState       MessageType = "connection_state"
	MessageTypeConfigUpdated         MessageType = "config_updated"
	MessageTypeDebugAudioInfo        MessageType = "debug_audio_info"
	MessageTypeError                 MessageType = "error"
)

// Client to server.
const (
	MessageTypePing      MessageType = "ping"
	MessageTypeGetState  MessageType = "get_state"
	MessageTypeVADConfig MessageType = "vad_config"
	MessageTypeClose     MessageType = "close"
)

// Batch NDJSON records.
const (
	MessageTypeInitialization  MessageType = "initialization"
	MessageTypeSegmentsSummary MessageType = "segments_summary"
	MessageTypeSegmentResult   MessageType = "segment_result"
	MessageTypeSegmentError    MessageType = "segment_error"
	MessageTypeFinalSummary    MessageType = "final_summary"
)

// Confidence labels attached to transcription results.
const (
	ConfidenceTentative = "tentative"
	ConfidenceHigh      = "high"
)

// Error codes carried in error messages.
const (
	ErrCodeBadRequest         = 400
	ErrCodeIdleTimeout        = 408
	ErrCodeServiceUnavailable = 503
)

// UnixNow returns the current time as unix seconds with fractions.
func UnixNow() float64 {
	return UnixTime(time.Now())
}

// UnixTime converts t to unix seconds with fractions.
func UnixTime(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
