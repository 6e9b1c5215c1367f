// Package batch implements the file transcription pipeline behind
// POST /transcribe/file: decode the upload to 16 kHz mono PCM, partition it
// into speech segments with whole-buffer VAD, cut overlong segments, then
// transcribe segments concurrently while streaming records in segment
// order.
package batch

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/voxstream/voxstream/pkg/asr"
	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
	"github.com/voxstream/voxstream/pkg/protocol"
	"github.com/voxstream/voxstream/pkg/trace"
	"github.com/voxstream/voxstream/pkg/vad"
	"go.opentelemetry.io/otel/attribute"
)

// Token budget for batch segments. Segments are bounded at 30 s, so a fixed
// generation budget is enough.
const segmentMaxNewTokens = 128

// Minimum transcribable segment length.
const minSegmentSamples = config.SampleRate / 10

// Request describes one uploaded file.
type Request struct {
	Filename   string
	Data       []byte
	VADEnabled bool
	Hotwords   []string
}

// Sink receives the NDJSON records of a run, in order.
type Sink func(record interface{}) error

// Pipeline turns uploads into transcription record streams.
type Pipeline struct {
	engine      asr.Engine
	segmenter   vad.Segmenter
	concurrency int
}

// NewPipeline creates a pipeline. segmenter may be nil, in which case every
// file is transcribed as one whole-buffer segment.
func NewPipeline(engine asr.Engine, segmenter vad.Segmenter) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	return &Pipeline{
		engine:      engine,
		segmenter:   segmenter,
		concurrency: config.BatchConcurrency,
	}, nil
}

// plannedSegment is one transcription unit after VAD and long-segment
// cutting. Sample offsets index into the decoded PCM.
type plannedSegment struct {
	segmentIndex  int
	originalIndex int
	startSample   int
	endSample     int
	isLong        bool
	subCount      int
	subIndex      int
}

func (s plannedSegment) startTime() float64 {
	return float64(s.startSample) / config.SampleRate
}

func (s plannedSegment) endTime() float64 {
	return float64(s.endSample) / config.SampleRate
}

func (s plannedSegment) duration() float64 {
	return float64(s.endSample-s.startSample) / config.SampleRate
}

// Run decodes req, plans segments and streams records through emit. It
// returns an error for undecodable input or a failing sink; per-segment
// transcription failures travel as segment_error records instead.
func (p *Pipeline) Run(ctx context.Context, req Request, emit Sink) error {
	started := time.Now()

	ctx, span := trace.InstrumentBatchJob(ctx, req.Filename, len(req.Data))
	defer span.End()

	pcm, err := audio.DecodeUpload(req.Data, req.Filename)
	if err != nil {
		err = fmt.Errorf("load audio: %w", err)
		trace.RecordError(span, err)
		return err
	}

	totalSamples := len(pcm) / config.BytesPerSample
	totalDuration := float64(totalSamples) / config.SampleRate
	log.Printf("[Batch] %s: %d bytes decoded to %.2fs of audio", req.Filename, len(req.Data), totalDuration)
	span.SetAttributes(trace.AudioAttrs(config.SampleRate, len(pcm))...)

	segments := p.plan(pcm, totalSamples, totalDuration, req.VADEnabled)
	total := len(segments)
	trace.AddEvent(span, "segments_planned", attribute.Int("batch.segments", total))

	if err := emit(&protocol.BatchInitialization{
		Type:               protocol.MessageTypeInitialization,
		Filename:           req.Filename,
		FileSize:           len(req.Data),
		TotalDuration:      round2(totalDuration),
		TotalSegments:      total,
		VADEnabled:         req.VADEnabled,
		MaxSegmentDuration: config.MaxSegmentDuration.Seconds(),
		Timestamp:          protocol.UnixNow(),
	}); err != nil {
		return err
	}

	if err := emit(&protocol.BatchSegmentsSummary{
		Type:          protocol.MessageTypeSegmentsSummary,
		Segments:      summarize(segments),
		TotalSegments: total,
		Timestamp:     protocol.UnixNow(),
	}); err != nil {
		return err
	}

	// Workers transcribe under the concurrency cap while the collector
	// emits strictly in segment order. Cancel stragglers once the sink
	// fails.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, p.concurrency)
	results := make([]interface{}, total)
	done := make([]chan struct{}, total)
	for i, seg := range segments {
		done[i] = make(chan struct{})
		go func(i int, seg plannedSegment) {
			defer close(done[i])
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = segmentError(seg, ctx.Err().Error())
				return
			}
			results[i] = p.transcribeSegment(ctx, seg, pcm, req.Hotwords)
			<-sem
		}(i, seg)
	}

	successful, failed := 0, 0
	for i := range segments {
		select {
		case <-done[i]:
		case <-ctx.Done():
			return ctx.Err()
		}

		switch rec := results[i].(type) {
		case *protocol.BatchSegmentResult:
			successful++
			rec.Progress = progress(successful+failed, total)
		case *protocol.BatchSegmentError:
			failed++
			rec.Progress = progress(successful+failed, total)
		}
		if err := emit(results[i]); err != nil {
			return err
		}
	}

	log.Printf("[Batch] %s: %d/%d segments transcribed in %.2fs",
		req.Filename, successful, total, time.Since(started).Seconds())

	return emit(&protocol.BatchFinalSummary{
		Type:               protocol.MessageTypeFinalSummary,
		TotalSegments:      total,
		SuccessfulSegments: successful,
		FailedSegments:     failed,
		TotalDuration:      round2(totalDuration),
		ProcessingTime:     round2(time.Since(started).Seconds()),
		CompletedAt:        protocol.UnixNow(),
		Message:            "Transcription complete",
	})
}

// RunCollect runs the pipeline and aggregates the stream into the
// non-streaming response shape: successful segment records only.
func (p *Pipeline) RunCollect(ctx context.Context, req Request) (*protocol.BatchResponse, error) {
	started := time.Now()
	resp := &protocol.BatchResponse{
		Status:   "completed",
		Filename: req.Filename,
		FileSize: len(req.Data),
	}

	err := p.Run(ctx, req, func(record interface{}) error {
		switch rec := record.(type) {
		case *protocol.BatchInitialization:
			resp.TotalDuration = rec.TotalDuration
		case *protocol.BatchSegmentResult:
			resp.Segments = append(resp.Segments, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.TotalSegments = len(resp.Segments)
	resp.ProcessingTime = round2(time.Since(started).Seconds())
	return resp, nil
}

// plan produces the final segment list: whole buffer for short audio,
// disabled VAD or a missing segmenter; otherwise VAD intervals with short
// ones dropped and long ones cut. VAD trouble falls back to the whole
// buffer rather than failing the request.
func (p *Pipeline) plan(pcm []byte, totalSamples int, totalDuration float64, vadEnabled bool) []plannedSegment {
	wholeBuffer := func() []plannedSegment {
		return indexed([]plannedSegment{{
			originalIndex: 1,
			startSample:   0,
			endSample:     totalSamples,
		}}, totalSamples)
	}

	if !vadEnabled || totalDuration < 1.0 || p.segmenter == nil {
		return wholeBuffer()
	}

	intervals, err := p.segmenter.Segment(pcm)
	if err != nil {
		log.Printf("[Batch] VAD segmentation failed, falling back to whole buffer: %v", err)
		return wholeBuffer()
	}

	var raw []plannedSegment
	for idx, iv := range intervals {
		start := clamp(durationToSamples(iv.Start), 0, totalSamples-1)
		end := max(start+100, min(durationToSamples(iv.End), totalSamples))
		if float64(end-start)/config.SampleRate <= 0.1 {
			continue
		}
		raw = append(raw, plannedSegment{
			originalIndex: idx + 1,
			startSample:   start,
			endSample:     end,
		})
	}
	if len(raw) == 0 {
		log.Printf("[Batch] VAD found no usable speech, falling back to whole buffer")
		return wholeBuffer()
	}

	return indexed(raw, totalSamples)
}

// indexed cuts segments longer than MaxSegmentDuration into sub-segments
// and assigns the final 1-based segment indices.
func indexed(raw []plannedSegment, totalSamples int) []plannedSegment {
	maxSeconds := config.MaxSegmentDuration.Seconds()
	samplesPerSub := int(maxSeconds) * config.SampleRate

	var final []plannedSegment
	for _, seg := range raw {
		duration := seg.duration()
		if duration <= maxSeconds {
			seg.isLong = false
			seg.subCount = 1
			seg.subIndex = 1
			final = append(final, seg)
			continue
		}

		numSub := int(math.Ceil(duration / maxSeconds))
		for i := 0; i < numSub; i++ {
			subStart := seg.startSample + i*samplesPerSub
			subEnd := min(seg.startSample+(i+1)*samplesPerSub, seg.endSample, totalSamples)
			if float64(subEnd-subStart)/config.SampleRate <= 0.1 {
				continue
			}
			final = append(final, plannedSegment{
				originalIndex: seg.originalIndex,
				startSample:   subStart,
				endSample:     subEnd,
				isLong:        true,
				subCount:      numSub,
				subIndex:      i + 1,
			})
		}
	}

	for i := range final {
		final[i].segmentIndex = i + 1
	}
	return final
}

func summarize(segments []plannedSegment) []protocol.SegmentInfo {
	infos := make([]protocol.SegmentInfo, 0, len(segments))
	for _, seg := range segments {
		infos = append(infos, protocol.SegmentInfo{
			SegmentIndex:    seg.segmentIndex,
			OriginalIndex:   seg.originalIndex,
			StartTime:       round3(seg.startTime()),
			EndTime:         round3(seg.endTime()),
			Duration:        round3(seg.duration()),
			IsLongSegment:   seg.isLong,
			SubSegmentCount: seg.subCount,
			SubSegmentIndex: seg.subIndex,
		})
	}
	return infos
}

// transcribeSegment runs one segment through the ASR engine and returns
// either a result or an error record.
func (p *Pipeline) transcribeSegment(ctx context.Context, seg plannedSegment, pcm []byte, hotwords []string) interface{} {
	started := time.Now()

	if seg.endSample-seg.startSample < minSegmentSamples {
		return segmentError(seg, fmt.Sprintf("segment %d has too few samples: %d",
			seg.segmentIndex, seg.endSample-seg.startSample))
	}

	sub := pcm[seg.startSample*config.BytesPerSample : seg.endSample*config.BytesPerSample]
	ctx, span := trace.InstrumentSegment(ctx, seg.segmentIndex, len(sub))
	res, err := p.engine.Transcribe(ctx, sub, asr.RecognitionConfig{
		MaxNewTokens: segmentMaxNewTokens,
		Hotwords:     hotwords,
	})
	if err != nil {
		trace.RecordError(span, err)
		span.End()
		log.Printf("[Batch] segment %d transcription failed: %v", seg.segmentIndex, err)
		return segmentError(seg, err.Error())
	}
	span.End()

	return &protocol.BatchSegmentResult{
		Type:           protocol.MessageTypeSegmentResult,
		SegmentIndex:   seg.segmentIndex,
		OriginalIndex:  seg.originalIndex,
		StartTime:      round3(seg.startTime()),
		EndTime:        round3(seg.endTime()),
		Duration:       round3(seg.duration()),
		Text:           strings.TrimSpace(res.Text),
		ProcessingTime: round3(time.Since(started).Seconds()),
		IsLongSegment:  seg.isLong,
		Timestamp:      protocol.UnixNow(),
	}
}

func segmentError(seg plannedSegment, msg string) *protocol.BatchSegmentError {
	return &protocol.BatchSegmentError{
		Type:          protocol.MessageTypeSegmentError,
		SegmentIndex:  seg.segmentIndex,
		OriginalIndex: seg.originalIndex,
		Error:         msg,
		IsLongSegment: seg.isLong,
		Timestamp:     protocol.UnixNow(),
	}
}

func progress(doneCount, total int) float64 {
	if total == 0 {
		return 100
	}
	return round1(float64(doneCount) / float64(total) * 100)
}

func durationToSamples(d time.Duration) int {
	return int(d * config.SampleRate / time.Second)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
