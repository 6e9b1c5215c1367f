// Package stream wires one WebSocket session's audio path together: the
// Ingress normalizes binary payloads into frames, the Coordinator turns VAD
// utterance events into tentative and committed transcripts, and the
// Emitter pumps results to the client in order.
//
// Usage:
//
//	buffer := audio.NewFrameBuffer()
//	controller, _ := vad.NewController(detector, buffer, vad.DefaultControllerConfig())
//	emitter, _ := stream.NewEmitter(sender, clientID, false)
//	coord, _ := stream.NewCoordinator(engine, buffer, emitter, controller.Events(), clientID, stream.DefaultCoordinatorConfig())
//
//	emitter.Start(ctx)
//	controller.Start(ctx)
//	coord.Start(ctx)
//	defer func() {
//		controller.Stop()
//		coord.Stop()
//		emitter.Stop()
//	}()
package stream

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/voxstream/voxstream/pkg/asr"
	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
	"github.com/voxstream/voxstream/pkg/protocol"
	"github.com/voxstream/voxstream/pkg/trace"
	"github.com/voxstream/voxstream/pkg/vad"
)

// CoordinatorConfig tunes the transcription coordinator.
type CoordinatorConfig struct {
	// TentativeInterval is the cadence of provisional transcriptions while
	// an utterance is open. Default 1 s.
	TentativeInterval time.Duration

	// Hotwords accompany every ASR call of this session.
	Hotwords []string

	// Debug enables verbose logging.
	Debug bool
}

// DefaultCoordinatorConfig returns the production settings.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		TentativeInterval: time.Second,
	}
}

// Coordinator consumes utterance events from the VAD controller and drives
// the two-tier transcription flow: 1 Hz tentative results over the freshest
// window while speech is open, and a committed result per finalized
// utterance. A single goroutine owns the flow, which yields the ordering
// guarantees for free: tentatives precede their commit, sub-segment commits
// are in index order, commits follow utterance start order.
type Coordinator struct {
	engine   asr.Engine
	buffer   *audio.FrameBuffer
	emitter  *Emitter
	events   <-chan vad.Event
	clientID string
	cfg      CoordinatorConfig

	// State below is touched only by the run goroutine.
	speaking      bool
	tentativeText string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewCoordinator creates a coordinator reading utterance events from
// events.
func NewCoordinator(engine asr.Engine, buffer *audio.FrameBuffer, emitter *Emitter, events <-chan vad.Event, clientID string, cfg CoordinatorConfig) (*Coordinator, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if buffer == nil {
		return nil, fmt.Errorf("buffer cannot be nil")
	}
	if emitter == nil {
		return nil, fmt.Errorf("emitter cannot be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("events channel cannot be nil")
	}
	if cfg.TentativeInterval <= 0 {
		cfg.TentativeInterval = time.Second
	}

	return &Coordinator{
		engine:   engine,
		buffer:   buffer,
		emitter:  emitter,
		events:   events,
		clientID: clientID,
		cfg:      cfg,
	}, nil
}

// Start launches the coordinator goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("coordinator already started")
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop cancels the coordinator and waits for it to exit. In-flight
// transcriptions are abandoned; their results are not emitted.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TentativeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-c.events:
			if !ok {
				// Controller stopped; nothing more will arrive.
				return
			}
			c.handleEvent(ctx, ev)

		case <-ticker.C:
			if c.speaking {
				c.tentative(ctx)
			}
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, ev vad.Event) {
	switch ev.Type {
	case vad.EventUtteranceStarted:
		c.speaking = true
		c.tentativeText = ""
		if c.cfg.Debug {
			log.Printf("[Coordinator] %s: utterance %s open", c.clientID, ev.Utterance.ID)
		}

	case vad.EventUtteranceEnded:
		c.speaking = false
		c.commit(ctx, ev.Utterance)

	case vad.EventUtteranceExtended:
		// Tentative cadence comes from the ticker, not from VAD windows.
	}
}

// tentative transcribes the freshest window of the open utterance and emits
// a provisional result. Failures are silent and empty transcripts are
// dropped; tentative output is best-effort by contract.
func (c *Coordinator) tentative(ctx context.Context) {
	frames := c.buffer.TentativeWindow(config.TemporaryTranscriptionInterval)
	if len(frames) == 0 {
		return
	}

	pcm := concatPCM(frames)
	if len(pcm) < config.ChunkSize {
		return
	}

	ctx, span := trace.InstrumentTranscription(ctx, c.engine.Name(), "tentative", len(pcm))
	res, err := c.engine.Transcribe(ctx, pcm, asr.RecognitionConfig{
		MaxNewTokens: config.TentativeMaxNewTokens,
		Hotwords:     c.cfg.Hotwords,
	})
	trace.EndTranscription(span, resultText(res), err)
	if err != nil {
		if c.cfg.Debug {
			log.Printf("[Coordinator] %s: tentative transcription failed: %v", c.clientID, err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	text := res.Text
	if strings.TrimSpace(text) == "" {
		return
	}

	c.tentativeText += text

	now := time.Now()
	newest := frames[len(frames)-1]
	c.emitter.SendBestEffort(&protocol.TentativeOutput{
		Type:            protocol.MessageTypeTentativeOutput,
		CurrentText:     text,
		Text:            c.tentativeText,
		StartChunkID:    frames[0].ID,
		EndChunkID:      newest.ID,
		Duration:        float64(len(frames)) * config.ChunkDurationMs / 1000.0,
		Timestamp:       protocol.UnixTime(now),
		ClientID:        c.clientID,
		Confidence:      protocol.ConfidenceTentative,
		ProcessingDelay: now.Sub(newest.CapturedAt).Seconds(),
	})

	if c.cfg.Debug {
		log.Printf("[Coordinator] %s: tentative %d-%d: %q", c.clientID, frames[0].ID, newest.ID, text)
	}
}

// commit runs the committed transcription flow for a finalized utterance,
// splitting audio longer than MaxSegmentDuration into sub-segments.
func (c *Coordinator) commit(ctx context.Context, utt *audio.Utterance) {
	if utt == nil {
		return
	}

	pcm := c.buffer.CommitPCM(utt)
	if len(pcm) < config.MinCommitBytes {
		log.Printf("[Coordinator] %s: utterance %s too short (%d bytes), skipping commit",
			c.clientID, utt.ID, len(pcm))
		return
	}

	// Guard against drifted metadata: report the smaller of the byte-derived
	// and the timestamp-derived duration.
	duration := min(audio.PCMDuration(len(pcm), config.SampleRate), utt.Duration())

	if duration <= config.MaxSegmentDuration {
		c.commitWhole(ctx, utt, pcm, duration)
		return
	}
	c.commitSplit(ctx, utt, pcm)
}

func (c *Coordinator) commitWhole(ctx context.Context, utt *audio.Utterance, pcm []byte, duration time.Duration) {
	ctx, span := trace.InstrumentTranscription(ctx, c.engine.Name(), "committed", len(pcm))
	res, err := c.engine.Transcribe(ctx, pcm, asr.RecognitionConfig{
		MaxNewTokens: committedTokenBudget(duration),
		Hotwords:     c.cfg.Hotwords,
	})
	trace.EndTranscription(span, resultText(res), err)
	if err != nil {
		log.Printf("[Coordinator] %s: committed transcription failed for %s: %v", c.clientID, utt.ID, err)
		return
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		log.Printf("[Coordinator] %s: committed transcription empty for %s", c.clientID, utt.ID)
		return
	}
	if ctx.Err() != nil {
		return
	}

	utt.Transcript = text
	c.sendCommitted(utt.ID, utt, text, duration, utt.StartTime, utt.EndTime, len(pcm))
	log.Printf("[Coordinator] %s: committed %s (%.2fs): %q", c.clientID, utt.ID, duration.Seconds(), text)
}

// commitSplit cuts the utterance PCM into contiguous sub-segments of at
// most MaxSegmentDuration, transcribing and emitting them in index order.
// Sub-segment timestamps are offsets from the utterance start.
func (c *Coordinator) commitSplit(ctx context.Context, utt *audio.Utterance, pcm []byte) {
	maxBytes := int(config.MaxSegmentDuration.Seconds()) * config.SampleRate * config.BytesPerSample
	numSegments := (len(pcm) + maxBytes - 1) / maxBytes

	log.Printf("[Coordinator] %s: utterance %s exceeds %v, splitting into %d sub-segments",
		c.clientID, utt.ID, config.MaxSegmentDuration, numSegments)

	var parts []string
	for i := 0; i < numSegments; i++ {
		startByte := i * maxBytes
		endByte := min(startByte+maxBytes, len(pcm))
		sub := pcm[startByte:endByte]
		subDuration := audio.PCMDuration(len(sub), config.SampleRate)

		subStart := utt.StartTime.Add(time.Duration(i) * config.MaxSegmentDuration)
		subEnd := subStart.Add(subDuration)

		subCtx, span := trace.InstrumentTranscription(ctx, c.engine.Name(), "committed", len(sub))
		res, err := c.engine.Transcribe(subCtx, sub, asr.RecognitionConfig{
			MaxNewTokens: committedTokenBudget(subDuration),
			Hotwords:     c.cfg.Hotwords,
		})
		trace.EndTranscription(span, resultText(res), err)
		if err != nil {
			log.Printf("[Coordinator] %s: sub-segment %d/%d transcription failed: %v",
				c.clientID, i+1, numSegments, err)
			continue
		}
		text := strings.TrimSpace(res.Text)
		if text == "" {
			log.Printf("[Coordinator] %s: sub-segment %d/%d transcription empty", c.clientID, i+1, numSegments)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		segmentID := fmt.Sprintf("%s_part_%d", utt.ID, i+1)
		c.sendCommitted(segmentID, utt, text, subDuration, subStart, subEnd, len(sub))
		parts = append(parts, text)
	}

	utt.Transcript = strings.Join(parts, " ")
	log.Printf("[Coordinator] %s: split commit of %s done (%d/%d sub-segments transcribed)",
		c.clientID, utt.ID, len(parts), numSegments)
}

func (c *Coordinator) sendCommitted(segmentID string, utt *audio.Utterance, text string, duration time.Duration, start, end time.Time, audioLength int) {
	msg := &protocol.CommittedOutput{
		Type:         protocol.MessageTypeCommittedOutput,
		Text:         text,
		SegmentID:    segmentID,
		StartChunkID: utt.StartFrameID,
		EndChunkID:   utt.EndFrameID,
		StartTime:    protocol.UnixTime(start),
		EndTime:      protocol.UnixTime(end),
		Duration:     duration.Seconds(),
		Timestamp:    protocol.UnixNow(),
		ClientID:     c.clientID,
		Confidence:   protocol.ConfidenceHigh,
		AudioLength:  audioLength,
	}
	if err := c.emitter.Send(msg); err != nil {
		log.Printf("[Coordinator] %s: failed to queue committed result %s: %v", c.clientID, segmentID, err)
	}
}

// committedTokenBudget scales the generation budget with segment length:
// 50 tokens plus 5 per second, capped.
func committedTokenBudget(duration time.Duration) int {
	return min(50+int(duration.Seconds()*5), config.CommittedMaxNewTokensCap)
}

func concatPCM(frames []*audio.Frame) []byte {
	total := 0
	for _, f := range frames {
		total += len(f.PCM)
	}
	pcm := make([]byte, 0, total)
	for _, f := range frames {
		pcm = append(pcm, f.PCM...)
	}
	return pcm
}

func resultText(res *asr.RecognitionResult) string {
	if res == nil {
		return ""
	}
	return res.Text
}
