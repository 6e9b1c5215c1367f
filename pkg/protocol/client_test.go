package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
		want MessageType
	}{
		{name: "ping", data: `{"type":"ping"}`, want: MessageTypePing},
		{name: "get_state", data: `{"type":"get_state"}`, want: MessageTypeGetState},
		{name: "close", data: `{"type":"close"}`, want: MessageTypeClose},
		{name: "vad_config", data: `{"type":"vad_config","config":{}}`, want: MessageTypeVADConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseClientMessage([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.ClientMessageType())
		})
	}
}

func TestParseClientMessageVADConfigFields(t *testing.T) {
	data := `{"type":"vad_config","config":{"enabled":false,"speech_threshold":0.75,"smoothing_window":3}}`
	msg, err := ParseClientMessage([]byte(data))
	require.NoError(t, err)

	vc, ok := msg.(*VADConfigMessage)
	require.True(t, ok)

	require.NotNil(t, vc.Config.Enabled)
	assert.False(t, *vc.Config.Enabled)
	require.NotNil(t, vc.Config.SpeechThreshold)
	assert.Equal(t, 0.75, *vc.Config.SpeechThreshold)
	require.NotNil(t, vc.Config.SmoothingWindow)
	assert.Equal(t, 3, *vc.Config.SmoothingWindow)

	// Absent fields stay nil so partial updates leave settings untouched.
	assert.Nil(t, vc.Config.SilenceThreshold)
}

func TestParseClientMessageErrors(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"subscribe"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe")

	_, err = ParseClientMessage([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseClientMessage([]byte(`{"type":"vad_config","config":"nope"}`))
	assert.Error(t, err)
}

func TestVADConfigPayloadValidate(t *testing.T) {
	threshold := func(v float64) *float64 { return &v }
	window := func(v int) *int { return &v }

	assert.NoError(t, VADConfigPayload{}.Validate())
	assert.NoError(t, VADConfigPayload{SpeechThreshold: threshold(0)}.Validate())
	assert.NoError(t, VADConfigPayload{SpeechThreshold: threshold(1)}.Validate())
	assert.NoError(t, VADConfigPayload{SmoothingWindow: window(1)}.Validate())

	assert.Error(t, VADConfigPayload{SpeechThreshold: threshold(1.5)}.Validate())
	assert.Error(t, VADConfigPayload{SpeechThreshold: threshold(-0.1)}.Validate())
	assert.Error(t, VADConfigPayload{SmoothingWindow: window(0)}.Validate())
}
