package protocol

import (
	"encoding/json"
	"fmt"
)

// ClientMessage is the interface for all client control messages.
type ClientMessage interface {
	ClientMessageType() MessageType
}

// BaseClientMessage contains the discriminator shared by all client
// messages.
type BaseClientMessage struct {
	Type MessageType `json:"type"`
}

func (m BaseClientMessage) ClientMessageType() MessageType {
	return m.Type
}

// PingMessage requests a pong.
type PingMessage struct {
	BaseClientMessage
}

// GetStateMessage requests a connection_state snapshot.
type GetStateMessage struct {
	BaseClientMessage
}

// CloseMessage asks the server to end the session.
type CloseMessage struct {
	BaseClientMessage
}

// VADConfigPayload carries a partial VAD configuration. Pointer fields
// distinguish "absent" from zero values; absent fields leave the current
// setting untouched. SilenceThreshold is accepted and echoed for client
// compatibility but the hysteresis derives silence from the speech
// threshold.
type VADConfigPayload struct {
	Enabled          *bool    `json:"enabled,omitempty"`
	SpeechThreshold  *float64 `json:"speech_threshold,omitempty"`
	SilenceThreshold *float64 `json:"silence_threshold,omitempty"`
	SmoothingWindow  *int     `json:"smoothing_window,omitempty"`
}

// Validate checks the payload ranges: speech_threshold in [0,1],
// smoothing_window >= 1.
func (p VADConfigPayload) Validate() error {
	if p.SpeechThreshold != nil && (*p.SpeechThreshold < 0 || *p.SpeechThreshold > 1) {
		return fmt.Errorf("speech_threshold must be between 0 and 1, got %v", *p.SpeechThreshold)
	}
	if p.SmoothingWindow != nil && *p.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *p.SmoothingWindow)
	}
	return nil
}

// VADConfigMessage updates the session's VAD settings.
type VADConfigMessage struct {
	BaseClientMessage
	Config VADConfigPayload `json:"config"`
}

// ParseClientMessage parses a JSON text frame into a ClientMessage.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var base BaseClientMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to parse message type: %w", err)
	}

	switch base.Type {
	case MessageTypePing:
		return &PingMessage{BaseClientMessage: base}, nil

	case MessageTypeGetState:
		return &GetStateMessage{BaseClientMessage: base}, nil

	case MessageTypeClose:
		return &CloseMessage{BaseClientMessage: base}, nil

	case MessageTypeVADConfig:
		var m VADConfigMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse vad_config message: %w", err)
		}
		return &m, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}
