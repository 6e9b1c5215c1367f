package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentBatchJob creates a span covering one file transcription job
func InstrumentBatchJob(ctx context.Context, filename string, fileSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, "batch.transcribe_file",
		trace.WithAttributes(
			BatchAttrs(filename, fileSize)...,
		),
	)
}

// InstrumentSegment creates a span for one batch segment transcription
func InstrumentSegment(ctx context.Context, segmentIndex, audioSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, "batch.segment",
		trace.WithAttributes(
			attribute.Int(AttrSegmentIndex, segmentIndex),
			attribute.Int(AttrAudioDataSize, audioSize),
		),
	)
}
