package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Session attributes
	AttrClientID  = "client.id"
	AttrSegmentID = "segment.id"

	// Audio attributes
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioDataSize   = "audio.data_size"

	// ASR attributes
	AttrASRProvider      = "asr.provider"
	AttrASRMode          = "asr.mode"
	AttrTranscriptLength = "transcript.length"

	// Batch attributes
	AttrBatchFilename = "batch.filename"
	AttrBatchFileSize = "batch.file_size"
	AttrSegmentIndex  = "segment.index"
)

// Helper functions to create common attributes

// SessionAttrs creates attributes for session information
func SessionAttrs(clientID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrClientID, clientID),
	}
}

// AudioAttrs creates attributes for an audio buffer
func AudioAttrs(sampleRate, dataSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioDataSize, dataSize),
	}
}

// BatchAttrs creates attributes for a batch transcription job
func BatchAttrs(filename string, fileSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBatchFilename, filename),
		attribute.Int(AttrBatchFileSize, fileSize),
	}
}
