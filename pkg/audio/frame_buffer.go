// Package audio provides the audio-side building blocks of the streaming
// pipeline: frame and utterance records, the bounded time-indexed frame
// buffer, PCM sample conversion, WAV encode/decode and upload decoding.
//
// FrameBuffer is the per-connection store of recent frames. Writers append
// normalized frames; the VAD controller and the transcription coordinator
// read ranges out of it. Aged frames are evicted, except those belonging to
// the currently open utterance.
//
// Usage:
//
//	fb := NewFrameBuffer()
//	frame := fb.Append(pcm)
//	window := fb.RecentUnprocessed(10)
//	fb.StartUtterance(window[0].ID, window[0].CapturedAt)
package audio

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxstream/voxstream/pkg/config"
)

// FrameBuffer is a bounded, frame-id indexed store of recent frames plus the
// most recent finalized utterance records. All methods are safe for
// concurrent use.
type FrameBuffer struct {
	mu sync.Mutex

	frames     map[int64]*Frame
	nextID     int64
	open       *Utterance
	utterances []*Utterance // finalized, FIFO-capped

	maxAge        time.Duration
	maxUtterances int
	lastEviction  time.Time

	now func() time.Time
}

// NewFrameBuffer creates a frame buffer with the service defaults
// (30 s retention, 3 retained utterances).
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		frames:        make(map[int64]*Frame),
		maxAge:        config.MaxAudioBufferSeconds * time.Second,
		maxUtterances: config.MaxRetainedUtterances,
		now:           time.Now,
	}
}

// NewFrameBufferWithClock creates a frame buffer that reads time from now.
// Tests use this to control frame timestamps and eviction.
func NewFrameBufferWithClock(now func() time.Time) *FrameBuffer {
	b := NewFrameBuffer()
	b.now = now
	return b
}

// Append stores pcm as the next frame and returns it. The caller hands over
// ownership of pcm. Eviction runs if at least one second has passed since
// the previous run.
func (b *FrameBuffer) Append(pcm []byte) *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	frame := &Frame{
		ID:         b.nextID,
		CapturedAt: now,
		PCM:        pcm,
	}
	b.frames[frame.ID] = frame
	b.nextID++

	if now.Sub(b.lastEviction) >= time.Second {
		b.lastEviction = now
		b.evictLocked(now)
	}

	return frame
}

// evictLocked removes frames older than maxAge and finalized utterances that
// start before the retention horizon. Frames referenced by the open
// utterance are never removed.
func (b *FrameBuffer) evictLocked(now time.Time) {
	minTime := now.Add(-b.maxAge)

	var protectFrom int64 = -1
	if b.open != nil {
		protectFrom = b.open.StartFrameID
	}

	for id, frame := range b.frames {
		if !frame.CapturedAt.Before(minTime) {
			continue
		}
		if protectFrom >= 0 && id >= protectFrom {
			continue
		}
		delete(b.frames, id)
	}

	kept := b.utterances[:0]
	for _, u := range b.utterances {
		if !u.StartTime.Before(minTime) {
			kept = append(kept, u)
		}
	}
	b.utterances = kept
}

// RecentUnprocessed returns up to the newest maxN frames that the VAD has
// not consumed yet, in ascending frame-id order.
func (b *FrameBuffer) RecentUnprocessed(maxN int) []*Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int64, 0, maxN)
	for id, frame := range b.frames {
		if !frame.Processed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > maxN {
		ids = ids[:maxN]
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	frames := make([]*Frame, 0, len(ids))
	for _, id := range ids {
		frames = append(frames, b.frames[id])
	}
	return frames
}

// MarkProcessed flags all present frames with lo <= id <= hi as consumed.
func (b *FrameBuffer) MarkProcessed(lo, hi int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := lo; id <= hi; id++ {
		if frame, ok := b.frames[id]; ok {
			frame.Processed = true
		}
	}
}

// Range returns frames with lo <= id <= hi that are still present, in
// ascending order. Evicted ids are skipped.
func (b *FrameBuffer) Range(lo, hi int64) []*Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rangeLocked(lo, hi)
}

func (b *FrameBuffer) rangeLocked(lo, hi int64) []*Frame {
	if hi < lo {
		return nil
	}
	frames := make([]*Frame, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		if frame, ok := b.frames[id]; ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// OpenUtterance returns the currently open utterance, or nil.
func (b *FrameBuffer) OpenUtterance() *Utterance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// StartUtterance opens a new utterance at frameID. If an utterance is
// already open it is force-finalized at frameID-1 first.
func (b *FrameBuffer) StartUtterance(frameID int64, t time.Time) *Utterance {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open != nil {
		b.finalizeLocked(frameID-1, t)
	}

	b.open = &Utterance{
		ID:           uuid.New().String()[:8],
		StartFrameID: frameID,
		StartTime:    t,
		EndFrameID:   -1,
		CreatedAt:    b.now(),
	}
	return b.open
}

// FinalizeUtterance closes the open utterance at endFrameID and returns it.
// Returns nil when no utterance is open.
func (b *FrameBuffer) FinalizeUtterance(endFrameID int64, t time.Time) *Utterance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalizeLocked(endFrameID, t)
}

func (b *FrameBuffer) finalizeLocked(endFrameID int64, t time.Time) *Utterance {
	if b.open == nil {
		return nil
	}

	u := b.open
	u.EndFrameID = endFrameID
	u.EndTime = t
	u.Finalized = true
	b.open = nil

	b.utterances = append(b.utterances, u)
	if len(b.utterances) > b.maxUtterances {
		b.utterances = b.utterances[1:]
	}
	return u
}

// CommitPCM concatenates the PCM of all present frames from the utterance
// start through the newest admitted frame.
func (b *FrameBuffer) CommitPCM(u *Utterance) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := b.rangeLocked(u.StartFrameID, b.nextID-1)
	size := 0
	for _, f := range frames {
		size += len(f.PCM)
	}
	pcm := make([]byte, 0, size)
	for _, f := range frames {
		pcm = append(pcm, f.PCM...)
	}
	return pcm
}

// TentativeWindow returns the newest frames of the open utterance, at most n
// of them and never reaching before the utterance start. Returns nil when no
// utterance is open.
func (b *FrameBuffer) TentativeWindow(n int) []*Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil {
		return nil
	}
	lo := b.nextID - int64(n)
	if lo < b.open.StartFrameID {
		lo = b.open.StartFrameID
	}
	return b.rangeLocked(lo, b.nextID-1)
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// LastFrameID returns the id of the newest admitted frame, or -1 when
// nothing has been admitted yet.
func (b *FrameBuffer) LastFrameID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextID - 1
}

// UtteranceCount returns the number of retained finalized utterances.
func (b *FrameBuffer) UtteranceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.utterances)
}

// Clear drops all frames and utterance records.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = make(map[int64]*Frame)
	b.utterances = nil
	b.open = nil
}
