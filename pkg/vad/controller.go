// Package vad provides voice activity detection for the streaming pipeline:
// a probability engine interface with silero (ONNX) and energy
// implementations, a whole-buffer segmenter for the batch path, and the
// streaming Controller that turns per-window probabilities into utterance
// lifecycle events.
//
// The Controller consumes unprocessed frames from a FrameBuffer in windows
// of VADProcessWindow frames, smooths the per-window verdicts with bounded
// speech/silence counters, and adapts its decision threshold: low while
// idle for sensitive onset detection, ramped up during confirmed speech to
// reject background spikes, reset on silence.
//
// Usage:
//
//	ctrl, err := vad.NewController(detector, buffer, vad.DefaultControllerConfig())
//	if err != nil {
//	    return err
//	}
//	ctrl.Start(ctx)
//	defer ctrl.Stop()
//	for ev := range ctrl.Events() {
//	    // handle utterance events
//	}
package vad

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// EventType identifies an utterance lifecycle event.
type EventType string

const (
	// EventUtteranceStarted fires when speech is first confirmed.
	EventUtteranceStarted EventType = "utterance_started"
	// EventUtteranceExtended fires on each speech window while speaking.
	EventUtteranceExtended EventType = "utterance_extended"
	// EventUtteranceEnded fires when silence is confirmed after speech.
	EventUtteranceEnded EventType = "utterance_ended"
)

// Event is an utterance lifecycle notification from the Controller.
type Event struct {
	Type        EventType
	Utterance   *audio.Utterance
	Probability float32
	Timestamp   time.Time
}

// Settings are the runtime-tunable controller knobs, adjustable per session
// through the vad_config control message.
type Settings struct {
	Enabled         bool
	SpeechThreshold float64
	SmoothingWindow int
}

// DefaultSettings returns the controller knobs applied to new sessions.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		SpeechThreshold: config.VADThresholdMin,
		SmoothingWindow: config.VADSmoothingWindow,
	}
}

// ControllerConfig holds construction-time controller parameters.
type ControllerConfig struct {
	ThresholdMin    float32
	ThresholdMax    float32
	ThresholdStep   float32
	SmoothingWindow int
	ProcessWindow   int
	TickInterval    time.Duration
	Enabled         bool
	Debug           bool
}

// DefaultControllerConfig returns the service defaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		ThresholdMin:    config.VADThresholdMin,
		ThresholdMax:    config.VADThresholdMax,
		ThresholdStep:   config.VADThresholdStep,
		SmoothingWindow: config.VADSmoothingWindow,
		ProcessWindow:   config.VADProcessWindow,
		TickInterval:    config.FrameDuration(),
		Enabled:         true,
	}
}

// Controller is the per-connection utterance state machine. It owns the
// open-utterance lifecycle of its FrameBuffer and publishes Events on a
// buffered channel.
type Controller struct {
	cfg      ControllerConfig
	detector DetectorInterface
	buffer   *audio.FrameBuffer
	events   chan Event

	// Accumulator, touched only by the run goroutine.
	pending     []*audio.Frame
	pendingIDs  map[int64]struct{}
	intakeLimit int

	mu           sync.Mutex
	enabled      bool
	smoothing    int
	threshold    float32
	speaking     bool
	speechCount  int
	silenceCount int

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewController creates a controller bound to one detector and one frame
// buffer.
func NewController(detector DetectorInterface, buffer *audio.FrameBuffer, cfg ControllerConfig) (*Controller, error) {
	if detector == nil {
		return nil, fmt.Errorf("vad controller requires a detector")
	}
	if buffer == nil {
		return nil, fmt.Errorf("vad controller requires a frame buffer")
	}
	if cfg.ProcessWindow <= 0 {
		cfg.ProcessWindow = config.VADProcessWindow
	}
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = config.VADSmoothingWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = config.FrameDuration()
	}
	if cfg.ThresholdMax <= cfg.ThresholdMin {
		return nil, fmt.Errorf("vad controller threshold bounds invalid: min=%.2f max=%.2f", cfg.ThresholdMin, cfg.ThresholdMax)
	}

	return &Controller{
		cfg:         cfg,
		detector:    detector,
		buffer:      buffer,
		events:      make(chan Event, 64),
		pendingIDs:  make(map[int64]struct{}),
		intakeLimit: config.MaxAudioBufferSeconds * 1000 / config.ChunkDurationMs,
		enabled:     cfg.Enabled,
		smoothing:   cfg.SmoothingWindow,
		threshold:   cfg.ThresholdMin,
	}, nil
}

// Events returns the channel of utterance lifecycle events. The channel is
// closed by Stop.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Start launches the detection loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("vad controller already started")
	}
	c.started = true
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Stop cancels the detection loop, waits for it to exit and closes the
// event channel.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	close(c.events)
}

// Speaking reports whether the controller currently tracks an open
// utterance.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Threshold returns the current adaptive decision threshold.
func (c *Controller) Threshold() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Enabled reports whether windows are being scored by the engine.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// ApplySettings updates the runtime-tunable knobs. A disabled controller
// treats every window as silence, so an open utterance still ends through
// the usual hysteresis.
func (c *Controller) ApplySettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = s.Enabled
	if s.SmoothingWindow >= 1 {
		c.smoothing = s.SmoothingWindow
		c.speechCount = min(c.speechCount, c.smoothing)
		c.silenceCount = min(c.silenceCount, c.smoothing)
	}
	if s.SpeechThreshold > 0 {
		c.setThresholdLocked(float32(s.SpeechThreshold))
	}
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.processWindow(ctx); err != nil {
				log.Printf("[VAD] window inference failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// processWindow runs one detection cycle: pull unprocessed frames into the
// accumulator, score one full window if available, update the state
// machine. The returned error is the engine failure, after the accumulator
// has been discarded.
func (c *Controller) processWindow(ctx context.Context) error {
	c.collectPending()

	pw := c.cfg.ProcessWindow
	if len(c.pending) < pw {
		return nil
	}
	window := c.pending[:pw]

	pcm := make([]byte, 0, pw*config.ChunkSize)
	for _, f := range window {
		pcm = append(pcm, f.PCM...)
	}

	c.mu.Lock()
	enabled := c.enabled
	threshold := c.threshold
	c.mu.Unlock()

	var prob float32
	if enabled {
		var err error
		prob, err = c.detector.Infer(audio.BytesToFloat32(pcm))
		if err != nil {
			c.discardPending()
			return err
		}
	}

	first, last := window[0], window[pw-1]
	c.buffer.MarkProcessed(first.ID, last.ID)
	c.consumePending(pw)

	if c.cfg.Debug {
		log.Printf("[VAD] window %d-%d prob=%.3f threshold=%.3f speaking=%v",
			first.ID, last.ID, prob, threshold, c.Speaking())
	}

	c.advance(ctx, prob > threshold, prob, first, last)
	return nil
}

// collectPending pulls unprocessed frames from the buffer into the
// accumulator, deduplicating by frame id.
func (c *Controller) collectPending() {
	for _, f := range c.buffer.RecentUnprocessed(c.intakeLimit) {
		if _, ok := c.pendingIDs[f.ID]; ok {
			continue
		}
		c.pendingIDs[f.ID] = struct{}{}
		c.pending = append(c.pending, f)
	}
	sort.Slice(c.pending, func(i, j int) bool { return c.pending[i].ID < c.pending[j].ID })
}

// consumePending drops the first n accumulated frames, keeping any surplus
// for the next cycle.
func (c *Controller) consumePending(n int) {
	for _, f := range c.pending[:n] {
		delete(c.pendingIDs, f.ID)
	}
	rest := copy(c.pending, c.pending[n:])
	c.pending = c.pending[:rest]
}

// discardPending drops the whole accumulator after an engine failure. The
// frames are marked processed so they are not collected again.
func (c *Controller) discardPending() {
	if len(c.pending) > 0 {
		c.buffer.MarkProcessed(c.pending[0].ID, c.pending[len(c.pending)-1].ID)
	}
	clear(c.pendingIDs)
	c.pending = c.pending[:0]
}

// advance applies one window verdict to the hysteresis counters and fires
// the resulting lifecycle events.
func (c *Controller) advance(ctx context.Context, isSpeech bool, prob float32, first, last *audio.Frame) {
	var started, extended, ended *audio.Utterance

	c.mu.Lock()
	w := c.smoothing
	if isSpeech {
		c.speechCount = min(c.speechCount+1, w)
		c.silenceCount = max(0, c.silenceCount-1)
		switch {
		case !c.speaking && c.speechCount >= 1:
			c.speaking = true
			started = c.buffer.StartUtterance(first.ID, first.CapturedAt)
			c.setThresholdLocked(c.threshold + c.cfg.ThresholdStep)
		case c.speaking:
			extended = c.buffer.OpenUtterance()
			c.setThresholdLocked(c.threshold + 0.3*c.cfg.ThresholdStep)
		}
	} else {
		c.silenceCount = min(c.silenceCount+1, w)
		c.speechCount = max(0, c.speechCount-1)
		switch {
		case c.speaking && c.silenceCount >= w:
			c.speaking = false
			ended = c.buffer.FinalizeUtterance(last.ID, last.CapturedAt)
			c.setThresholdLocked(c.cfg.ThresholdMin)
		case !c.speaking && c.silenceCount >= w:
			c.setThresholdLocked(c.cfg.ThresholdMin)
		}
	}
	c.mu.Unlock()

	now := time.Now()
	if started != nil {
		log.Printf("[VAD] utterance %s started at frame %d (prob=%.3f)", started.ID, started.StartFrameID, prob)
		c.emit(ctx, Event{Type: EventUtteranceStarted, Utterance: started, Probability: prob, Timestamp: now})
	}
	if extended != nil {
		c.emitBestEffort(Event{Type: EventUtteranceExtended, Utterance: extended, Probability: prob, Timestamp: now})
	}
	if ended != nil {
		log.Printf("[VAD] utterance %s ended at frame %d", ended.ID, ended.EndFrameID)
		c.emit(ctx, Event{Type: EventUtteranceEnded, Utterance: ended, Probability: prob, Timestamp: now})
	}
}

// emit delivers a lifecycle event, waiting for channel space unless the
// context is cancelled. Used for start/end events which must not be lost.
func (c *Controller) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// emitBestEffort delivers an event if the channel has space.
func (c *Controller) emitBestEffort(ev Event) {
	select {
	case c.events <- ev:
	default:
		if c.cfg.Debug {
			log.Printf("[VAD] event channel full, dropping %s", ev.Type)
		}
	}
}

func (c *Controller) setThresholdLocked(v float32) {
	if v < c.cfg.ThresholdMin {
		v = c.cfg.ThresholdMin
	}
	if v > c.cfg.ThresholdMax {
		v = c.cfg.ThresholdMax
	}
	c.threshold = v
}
