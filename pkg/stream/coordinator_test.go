package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxstream/voxstream/pkg/asr"
	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
	"github.com/voxstream/voxstream/pkg/protocol"
	"github.com/voxstream/voxstream/pkg/vad"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// coordRig wires a coordinator to a deterministic clock, a hand-fed event
// channel and a recording sender.
type coordRig struct {
	coord   *Coordinator
	buffer  *audio.FrameBuffer
	clock   *testClock
	events  chan vad.Event
	sender  *mockSender
	emitter *Emitter
	cancel  context.CancelFunc
}

func newCoordRig(t *testing.T, engine asr.Engine, cfg CoordinatorConfig) *coordRig {
	t.Helper()

	clock := &testClock{now: time.Unix(1700000000, 0)}
	buffer := audio.NewFrameBufferWithClock(clock.Now)
	sender := newMockSender()
	emitter, err := NewEmitter(sender, "test-client", false)
	require.NoError(t, err)
	events := make(chan vad.Event, 8)

	coord, err := NewCoordinator(engine, buffer, emitter, events, "test-client", cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, emitter.Start(ctx))
	require.NoError(t, coord.Start(ctx))
	t.Cleanup(func() {
		coord.Stop()
		emitter.Stop()
		cancel()
	})

	return &coordRig{
		coord:   coord,
		buffer:  buffer,
		clock:   clock,
		events:  events,
		sender:  sender,
		emitter: emitter,
		cancel:  cancel,
	}
}

// feed appends n silent frames, advancing the clock one frame duration per
// append so frame i is captured at start + i*64ms.
func (r *coordRig) feed(n int) {
	for i := 0; i < n; i++ {
		r.buffer.Append(make([]byte, config.ChunkSize))
		r.clock.Advance(config.FrameDuration())
	}
}

func TestNewCoordinatorValidation(t *testing.T) {
	engine := asr.NewMockEngine()
	buffer := audio.NewFrameBuffer()
	emitter, err := NewEmitter(newMockSender(), "c1", false)
	require.NoError(t, err)
	events := make(chan vad.Event)

	_, err = NewCoordinator(nil, buffer, emitter, events, "c1", DefaultCoordinatorConfig())
	assert.Error(t, err)
	_, err = NewCoordinator(engine, nil, emitter, events, "c1", DefaultCoordinatorConfig())
	assert.Error(t, err)
	_, err = NewCoordinator(engine, buffer, nil, events, "c1", DefaultCoordinatorConfig())
	assert.Error(t, err)
	_, err = NewCoordinator(engine, buffer, emitter, nil, "c1", DefaultCoordinatorConfig())
	assert.Error(t, err)

	// A zero interval falls back to the production cadence.
	coord, err := NewCoordinator(engine, buffer, emitter, events, "c1", CoordinatorConfig{})
	require.NoError(t, err)
	assert.Equal(t, time.Second, coord.cfg.TentativeInterval)
}

func TestDefaultCoordinatorConfig(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	assert.Equal(t, time.Second, cfg.TentativeInterval)
	assert.Empty(t, cfg.Hotwords)
}

func TestCoordinatorTentativeFlow(t *testing.T) {
	texts := []string{"hello", " world"}
	var calls int
	engine := asr.NewMockEngine()
	engine.TranscribeFunc = func(ctx context.Context, pcm []byte, cfg asr.RecognitionConfig) (*asr.RecognitionResult, error) {
		i := calls
		calls++
		if i < len(texts) {
			return &asr.RecognitionResult{Text: texts[i]}, nil
		}
		return &asr.RecognitionResult{}, nil
	}

	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: 20 * time.Millisecond})
	utt := rig.buffer.StartUtterance(0, rig.clock.Now())
	rig.feed(30)
	rig.events <- vad.Event{Type: vad.EventUtteranceStarted, Utterance: utt}

	require.Eventually(t, func() bool { return rig.sender.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	first, ok := rig.sender.message(0).(*protocol.TentativeOutput)
	require.True(t, ok)
	assert.Equal(t, protocol.MessageTypeTentativeOutput, first.Type)
	assert.Equal(t, "hello", first.CurrentText)
	assert.Equal(t, "hello", first.Text)
	assert.Equal(t, int64(10), first.StartChunkID)
	assert.Equal(t, int64(29), first.EndChunkID)
	assert.InDelta(t, 1.28, first.Duration, 1e-9)
	assert.Equal(t, protocol.ConfidenceTentative, first.Confidence)
	assert.Equal(t, "test-client", first.ClientID)

	// Accumulation concatenates raw transcripts without a separator.
	second, ok := rig.sender.message(1).(*protocol.TentativeOutput)
	require.True(t, ok)
	assert.Equal(t, " world", second.CurrentText)
	assert.Equal(t, "hello world", second.Text)

	rig.coord.Stop()
	require.GreaterOrEqual(t, engine.CallCount(), 2)
	assert.Equal(t, config.TentativeMaxNewTokens, engine.Calls[0].Config.MaxNewTokens)
	assert.Empty(t, engine.Calls[0].Config.Hotwords)
}

func TestCoordinatorNoTentativeWithoutUtterance(t *testing.T) {
	engine := asr.NewMockEngineWithText("should not appear")
	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: 10 * time.Millisecond})
	rig.feed(30)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, engine.CallCount())
	assert.Zero(t, rig.sender.count())
}

func TestCoordinatorCommitWhole(t *testing.T) {
	engine := asr.NewMockEngineWithText("the committed text")
	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: time.Hour})

	t0 := rig.clock.Now()
	utt := rig.buffer.StartUtterance(0, t0)
	rig.feed(59)
	end := t0.Add(58 * config.FrameDuration())
	fin := rig.buffer.FinalizeUtterance(58, end)
	require.Same(t, utt, fin)

	rig.events <- vad.Event{Type: vad.EventUtteranceEnded, Utterance: fin}
	require.Eventually(t, func() bool { return rig.sender.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	msg, ok := rig.sender.message(0).(*protocol.CommittedOutput)
	require.True(t, ok)
	assert.Equal(t, protocol.MessageTypeCommittedOutput, msg.Type)
	assert.Equal(t, "the committed text", msg.Text)
	assert.Equal(t, fin.ID, msg.SegmentID)
	assert.Equal(t, int64(0), msg.StartChunkID)
	assert.Equal(t, int64(58), msg.EndChunkID)
	assert.Equal(t, 59*config.ChunkSize, msg.AudioLength)
	assert.Equal(t, protocol.UnixTime(t0), msg.StartTime)
	assert.Equal(t, protocol.UnixTime(end), msg.EndTime)
	assert.Equal(t, protocol.ConfidenceHigh, msg.Confidence)

	// The byte span covers 59 frames (3.776 s) while the utterance metadata
	// spans 58 frame starts (3.712 s); the smaller one is reported.
	assert.InDelta(t, 3.712, msg.Duration, 1e-9)

	rig.coord.Stop()
	require.Equal(t, 1, engine.CallCount())
	assert.Equal(t, 68, engine.Calls[0].Config.MaxNewTokens)
	assert.Equal(t, "the committed text", fin.Transcript)
}

func TestCoordinatorCommitSkipsShortUtterance(t *testing.T) {
	engine := asr.NewMockEngineWithText("kept")
	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: time.Hour})

	t0 := rig.clock.Now()
	rig.buffer.StartUtterance(0, t0)
	rig.feed(3)
	fin1 := rig.buffer.FinalizeUtterance(2, rig.clock.Now())

	rig.buffer.StartUtterance(3, rig.clock.Now())
	rig.feed(1)
	fin2 := rig.buffer.FinalizeUtterance(3, rig.clock.Now())

	rig.events <- vad.Event{Type: vad.EventUtteranceEnded, Utterance: fin1}
	rig.events <- vad.Event{Type: vad.EventUtteranceEnded, Utterance: fin2}

	require.Eventually(t, func() bool { return rig.sender.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	rig.coord.Stop()

	// Only the first utterance cleared the minimum commit size; the single
	// 2048-byte utterance was skipped without an engine call.
	require.Equal(t, 1, engine.CallCount())
	msg, ok := rig.sender.message(0).(*protocol.CommittedOutput)
	require.True(t, ok)
	assert.Equal(t, fin1.ID, msg.SegmentID)
	assert.Empty(t, fin2.Transcript)
}

func TestCoordinatorCommitSplitsLongUtterance(t *testing.T) {
	var calls int
	texts := []string{"first half", "", "tail words"}
	engine := asr.NewMockEngine()
	engine.TranscribeFunc = func(ctx context.Context, pcm []byte, cfg asr.RecognitionConfig) (*asr.RecognitionResult, error) {
		i := calls
		calls++
		return &asr.RecognitionResult{Text: texts[i]}, nil
	}

	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: time.Hour})

	// 1172 frames of 2048 bytes are 2400256 bytes, just over 75 s of audio.
	t0 := rig.clock.Now()
	utt := rig.buffer.StartUtterance(0, t0)
	rig.feed(1172)
	end := t0.Add(1171 * config.FrameDuration())
	fin := rig.buffer.FinalizeUtterance(1171, end)
	require.Same(t, utt, fin)

	rig.events <- vad.Event{Type: vad.EventUtteranceEnded, Utterance: fin}
	require.Eventually(t, func() bool { return rig.sender.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	rig.coord.Stop()

	part1, ok := rig.sender.message(0).(*protocol.CommittedOutput)
	require.True(t, ok)
	assert.Equal(t, fin.ID+"_part_1", part1.SegmentID)
	assert.Equal(t, "first half", part1.Text)
	assert.Equal(t, 960000, part1.AudioLength)
	assert.InDelta(t, 30.0, part1.Duration, 1e-9)
	assert.Equal(t, protocol.UnixTime(t0), part1.StartTime)
	assert.Equal(t, protocol.UnixTime(t0.Add(30*time.Second)), part1.EndTime)
	assert.Equal(t, int64(0), part1.StartChunkID)
	assert.Equal(t, int64(1171), part1.EndChunkID)

	// The empty middle sub-segment is skipped; the tail still goes out.
	part3, ok := rig.sender.message(1).(*protocol.CommittedOutput)
	require.True(t, ok)
	assert.Equal(t, fin.ID+"_part_3", part3.SegmentID)
	assert.Equal(t, "tail words", part3.Text)
	assert.Equal(t, 480256, part3.AudioLength)
	assert.InDelta(t, 15.008, part3.Duration, 1e-9)
	assert.Equal(t, protocol.UnixTime(t0.Add(60*time.Second)), part3.StartTime)
	assert.Equal(t, protocol.UnixTime(t0.Add(60*time.Second).Add(15008*time.Millisecond)), part3.EndTime)

	require.Equal(t, 3, engine.CallCount())
	assert.Equal(t, 200, engine.Calls[0].Config.MaxNewTokens)
	assert.Equal(t, 200, engine.Calls[1].Config.MaxNewTokens)
	assert.Equal(t, 125, engine.Calls[2].Config.MaxNewTokens)

	assert.Equal(t, "first half tail words", fin.Transcript)
}

func TestCoordinatorPassesHotwords(t *testing.T) {
	engine := asr.NewMockEngineWithText("ok")
	rig := newCoordRig(t, engine, CoordinatorConfig{
		TentativeInterval: time.Hour,
		Hotwords:          []string{"kubernetes", "grpc"},
	})

	t0 := rig.clock.Now()
	rig.buffer.StartUtterance(0, t0)
	rig.feed(3)
	fin := rig.buffer.FinalizeUtterance(2, rig.clock.Now())

	rig.events <- vad.Event{Type: vad.EventUtteranceEnded, Utterance: fin}
	require.Eventually(t, func() bool { return rig.sender.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	rig.coord.Stop()

	last := engine.LastCall()
	require.NotNil(t, last)
	assert.Equal(t, []string{"kubernetes", "grpc"}, last.Config.Hotwords)
}

func TestCoordinatorDiscardsResultAfterCancel(t *testing.T) {
	engine := asr.NewMockEngine()
	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: time.Hour})
	engine.TranscribeFunc = func(ctx context.Context, pcm []byte, cfg asr.RecognitionConfig) (*asr.RecognitionResult, error) {
		rig.cancel()
		return &asr.RecognitionResult{Text: "too late"}, nil
	}

	t0 := rig.clock.Now()
	rig.buffer.StartUtterance(0, t0)
	rig.feed(3)
	fin := rig.buffer.FinalizeUtterance(2, rig.clock.Now())

	rig.events <- vad.Event{Type: vad.EventUtteranceEnded, Utterance: fin}
	require.Eventually(t, func() bool { return engine.CallCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	rig.coord.Stop()

	assert.Zero(t, rig.sender.count())
	assert.Empty(t, fin.Transcript)
}

func TestCoordinatorTentativeResetsPerUtterance(t *testing.T) {
	var phase2 atomic.Bool
	engine := asr.NewMockEngine()
	engine.TranscribeFunc = func(ctx context.Context, pcm []byte, cfg asr.RecognitionConfig) (*asr.RecognitionResult, error) {
		if cfg.MaxNewTokens != config.TentativeMaxNewTokens {
			return &asr.RecognitionResult{Text: "committed"}, nil
		}
		if phase2.Load() {
			return &asr.RecognitionResult{Text: "gamma"}, nil
		}
		return &asr.RecognitionResult{Text: "alpha"}, nil
	}

	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: 20 * time.Millisecond})

	utt1 := rig.buffer.StartUtterance(0, rig.clock.Now())
	rig.feed(3)
	rig.events <- vad.Event{Type: vad.EventUtteranceStarted, Utterance: utt1}
	require.Eventually(t, func() bool { return rig.sender.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	fin1 := rig.buffer.FinalizeUtterance(2, rig.clock.Now())
	rig.events <- vad.Event{Type: vad.EventUtteranceEnded, Utterance: fin1}
	require.Eventually(t, func() bool {
		for _, m := range rig.sender.all() {
			if _, ok := m.(*protocol.CommittedOutput); ok {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	phase2.Store(true)
	utt2 := rig.buffer.StartUtterance(3, rig.clock.Now())
	rig.feed(3)
	rig.events <- vad.Event{Type: vad.EventUtteranceStarted, Utterance: utt2}

	var second *protocol.TentativeOutput
	require.Eventually(t, func() bool {
		for _, m := range rig.sender.all() {
			if to, ok := m.(*protocol.TentativeOutput); ok && to.CurrentText == "gamma" {
				second = to
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	// Accumulated text restarts with the new utterance and the window is
	// clamped to its start frame.
	assert.Equal(t, "gamma", second.Text)
	assert.Equal(t, int64(3), second.StartChunkID)
	assert.Equal(t, int64(5), second.EndChunkID)
}

func TestCoordinatorStopsWhenEventsClose(t *testing.T) {
	engine := asr.NewMockEngine()
	rig := newCoordRig(t, engine, CoordinatorConfig{TentativeInterval: time.Hour})

	close(rig.events)
	rig.coord.Stop()
	assert.Zero(t, rig.sender.count())
}

func TestCommittedTokenBudget(t *testing.T) {
	cases := []struct {
		duration time.Duration
		want     int
	}{
		{0, 50},
		{time.Second, 55},
		{3712 * time.Millisecond, 68},
		{10 * time.Second, 100},
		{29900 * time.Millisecond, 199},
		{30 * time.Second, 200},
		{75 * time.Second, 200},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, committedTokenBudget(tc.duration), "duration %v", tc.duration)
	}
}
