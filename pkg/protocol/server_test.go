package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionEstablished(t *testing.T) {
	msg := NewConnectionEstablished("client_123_abc", true)

	assert.Equal(t, MessageTypeConnectionEstablished, msg.Type)
	assert.Equal(t, "client_123_abc", msg.ClientID)
	assert.InDelta(t, UnixNow(), msg.ServerTime, 1.0)
	assert.True(t, msg.Features.TieredOutput)
	assert.True(t, msg.Features.DebugAudio)
	assert.Equal(t, 64, msg.Configuration.AudioChunkDurationMs)
	assert.Equal(t, 30.0, msg.Configuration.MaxSegmentDuration)
}

func TestConnectionEstablishedWireFormat(t *testing.T) {
	data, err := json.Marshal(NewConnectionEstablished("c1", false))
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "connection_established", raw["type"])
	features, ok := raw["features"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, features["debug_audio"])
	cfg, ok := raw["configuration"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(20), cfg["temporary_transcription_interval"])
}

func TestCommittedOutputWireFormat(t *testing.T) {
	msg := CommittedOutput{
		Type:         MessageTypeCommittedOutput,
		Text:         "hello",
		SegmentID:    "ab12cd34_part_2",
		StartChunkID: 10,
		EndChunkID:   69,
		StartTime:    1700000000.5,
		EndTime:      1700000004.276,
		Duration:     3.776,
		Timestamp:    UnixNow(),
		ClientID:     "c1",
		Confidence:   ConfidenceHigh,
		AudioLength:  120832,
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "committed_output", raw["type"])
	assert.Equal(t, "ab12cd34_part_2", raw["segment_id"])
	assert.Equal(t, float64(10), raw["start_chunk_id"])
	assert.Equal(t, "high", raw["confidence"])
	assert.Equal(t, float64(120832), raw["audio_length"])
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(ErrCodeIdleTimeout, "connection idle", "c1")

	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, 408, msg.Code)
	assert.Equal(t, "c1", msg.ClientID)
}

func TestUnixTime(t *testing.T) {
	ts := time.Date(2023, 11, 14, 22, 13, 20, 500_000_000, time.UTC)
	assert.Equal(t, 1700000000.5, UnixTime(ts))
}

func TestDefaultAudioConfig(t *testing.T) {
	cfg := DefaultAudioConfig()
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 16, cfg.BitDepth)
	assert.Equal(t, 64, cfg.ChunkDurationMs)
}
