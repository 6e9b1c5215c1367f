package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentTranscription creates a span for one ASR engine call. mode
// distinguishes tentative, committed and batch requests.
func InstrumentTranscription(ctx context.Context, provider, mode string, audioSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, "asr.transcribe",
		trace.WithAttributes(
			attribute.String(AttrASRProvider, provider),
			attribute.String(AttrASRMode, mode),
			attribute.Int(AttrAudioDataSize, audioSize),
		),
	)
}

// EndTranscription finishes a transcription span, recording the transcript
// size or the failure.
func EndTranscription(span trace.Span, transcript string, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		span.SetAttributes(attribute.Int(AttrTranscriptLength, len(transcript)))
	}
	span.End()
}
