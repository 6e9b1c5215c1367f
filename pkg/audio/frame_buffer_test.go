package audio

import (
	"bytes"
	"testing"
	"time"
)

// fakeClock returns a clock function that advances by step on every call
// when step > 0, starting at base.
func fakeClock(base time.Time, step time.Duration) func() time.Time {
	now := base
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestFrameBufferAppendAssignsDenseIDs(t *testing.T) {
	fb := NewFrameBuffer()

	for i := 0; i < 5; i++ {
		frame := fb.Append([]byte{byte(i)})
		if frame.ID != int64(i) {
			t.Errorf("Expected frame ID %d, got %d", i, frame.ID)
		}
	}

	if fb.Len() != 5 {
		t.Errorf("Expected 5 frames, got %d", fb.Len())
	}
	if fb.LastFrameID() != 4 {
		t.Errorf("Expected last frame ID 4, got %d", fb.LastFrameID())
	}
}

func TestFrameBufferLastFrameIDEmpty(t *testing.T) {
	fb := NewFrameBuffer()
	if fb.LastFrameID() != -1 {
		t.Errorf("Expected -1 for empty buffer, got %d", fb.LastFrameID())
	}
}

func TestFrameBufferEvictionByAge(t *testing.T) {
	fb := NewFrameBuffer()
	base := time.Unix(1000, 0)
	fb.now = fakeClock(base, 0)

	// Old frames captured at base.
	fb.Append([]byte{0})
	fb.Append([]byte{1})

	// Jump past the retention horizon; the next append triggers eviction.
	fb.now = fakeClock(base.Add(31*time.Second), 0)
	fb.Append([]byte{2})

	if fb.Len() != 1 {
		t.Errorf("Expected 1 frame after eviction, got %d", fb.Len())
	}
	if frames := fb.Range(0, 1); len(frames) != 0 {
		t.Errorf("Expected old frames evicted, got %d", len(frames))
	}
	if frames := fb.Range(2, 2); len(frames) != 1 {
		t.Errorf("Expected newest frame retained, got %d", len(frames))
	}
}

func TestFrameBufferEvictionThrottled(t *testing.T) {
	fb := NewFrameBuffer()
	base := time.Unix(1000, 0)
	fb.now = fakeClock(base, 0)
	fb.Append([]byte{0})

	// Less than one second later, old frames survive even past maxAge.
	fb.maxAge = time.Millisecond
	fb.now = fakeClock(base.Add(500*time.Millisecond), 0)
	fb.Append([]byte{1})

	if fb.Len() != 2 {
		t.Errorf("Expected eviction to be throttled, got %d frames", fb.Len())
	}
}

func TestFrameBufferEvictionProtectsOpenUtterance(t *testing.T) {
	fb := NewFrameBuffer()
	base := time.Unix(1000, 0)
	fb.now = fakeClock(base, 0)

	fb.Append([]byte{0})
	fb.Append([]byte{1})
	fb.StartUtterance(1, base)

	fb.now = fakeClock(base.Add(40*time.Second), 0)
	fb.Append([]byte{2})

	if frames := fb.Range(0, 0); len(frames) != 0 {
		t.Error("Frame before the open utterance should be evicted")
	}
	if frames := fb.Range(1, 2); len(frames) != 2 {
		t.Errorf("Open utterance frames must survive eviction, got %d", len(frames))
	}
}

func TestFrameBufferStartForceFinalizesOpen(t *testing.T) {
	fb := NewFrameBuffer()
	start := time.Unix(2000, 0)

	first := fb.StartUtterance(3, start)
	second := fb.StartUtterance(10, start.Add(2*time.Second))

	if !first.Finalized {
		t.Error("Previous utterance should be force-finalized")
	}
	if first.EndFrameID != 9 {
		t.Errorf("Expected force-finalize at frame 9, got %d", first.EndFrameID)
	}
	if second.Finalized {
		t.Error("New utterance should be open")
	}
	if open := fb.OpenUtterance(); open != second {
		t.Error("OpenUtterance should return the new utterance")
	}
	if fb.UtteranceCount() != 1 {
		t.Errorf("Expected 1 retained utterance, got %d", fb.UtteranceCount())
	}
}

func TestFrameBufferFinalizeUtterance(t *testing.T) {
	fb := NewFrameBuffer()
	start := time.Unix(2000, 0)
	end := start.Add(3 * time.Second)

	fb.StartUtterance(0, start)
	u := fb.FinalizeUtterance(7, end)

	if u == nil {
		t.Fatal("FinalizeUtterance returned nil")
	}
	if u.EndFrameID != 7 || !u.Finalized {
		t.Errorf("Unexpected finalized state: end=%d finalized=%v", u.EndFrameID, u.Finalized)
	}
	if d := u.Duration(); d != 3*time.Second {
		t.Errorf("Expected 3s duration, got %v", d)
	}
	if fb.OpenUtterance() != nil {
		t.Error("No utterance should remain open")
	}

	if fb.FinalizeUtterance(9, end) != nil {
		t.Error("Finalize without open utterance should return nil")
	}
}

func TestFrameBufferUtteranceCapFIFO(t *testing.T) {
	fb := NewFrameBuffer()
	base := time.Unix(2000, 0)

	for i := 0; i < 5; i++ {
		fb.StartUtterance(int64(i*10), base.Add(time.Duration(i)*time.Second))
		fb.FinalizeUtterance(int64(i*10+5), base.Add(time.Duration(i)*time.Second+500*time.Millisecond))
	}

	if fb.UtteranceCount() != 3 {
		t.Errorf("Expected cap of 3 retained utterances, got %d", fb.UtteranceCount())
	}
	// The oldest records are dropped first.
	if fb.utterances[0].StartFrameID != 20 {
		t.Errorf("Expected oldest retained start 20, got %d", fb.utterances[0].StartFrameID)
	}
}

func TestFrameBufferRecentUnprocessed(t *testing.T) {
	fb := NewFrameBuffer()
	for i := 0; i < 6; i++ {
		fb.Append([]byte{byte(i)})
	}

	frames := fb.RecentUnprocessed(4)
	if len(frames) != 4 {
		t.Fatalf("Expected 4 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.ID != int64(i+2) {
			t.Errorf("Expected ascending newest frames starting at 2, got %d at %d", f.ID, i)
		}
	}

	fb.MarkProcessed(0, 3)
	frames = fb.RecentUnprocessed(10)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 unprocessed frames, got %d", len(frames))
	}
	if frames[0].ID != 4 || frames[1].ID != 5 {
		t.Errorf("Unexpected unprocessed frames: %d, %d", frames[0].ID, frames[1].ID)
	}
}

func TestFrameBufferRangeSkipsMissing(t *testing.T) {
	fb := NewFrameBuffer()
	for i := 0; i < 4; i++ {
		fb.Append([]byte{byte(i)})
	}
	fb.mu.Lock()
	delete(fb.frames, 1)
	fb.mu.Unlock()

	frames := fb.Range(0, 3)
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}
	if frames[0].ID != 0 || frames[1].ID != 2 || frames[2].ID != 3 {
		t.Errorf("Unexpected range contents: %d %d %d", frames[0].ID, frames[1].ID, frames[2].ID)
	}

	if frames := fb.Range(3, 0); frames != nil {
		t.Error("Inverted range should return nil")
	}
}

func TestFrameBufferCommitPCM(t *testing.T) {
	fb := NewFrameBuffer()
	fb.Append([]byte{1, 1})
	fb.Append([]byte{2, 2})
	fb.Append([]byte{3, 3})

	u := fb.StartUtterance(1, time.Unix(3000, 0))
	pcm := fb.CommitPCM(u)

	want := []byte{2, 2, 3, 3}
	if !bytes.Equal(pcm, want) {
		t.Errorf("Expected %v, got %v", want, pcm)
	}
}

func TestFrameBufferTentativeWindow(t *testing.T) {
	fb := NewFrameBuffer()
	for i := 0; i < 30; i++ {
		fb.Append([]byte{byte(i)})
	}

	if frames := fb.TentativeWindow(20); frames != nil {
		t.Error("TentativeWindow without open utterance should return nil")
	}

	fb.StartUtterance(25, time.Unix(3000, 0))
	frames := fb.TentativeWindow(20)
	if len(frames) != 5 {
		t.Fatalf("Expected window clamped to utterance start, got %d frames", len(frames))
	}
	if frames[0].ID != 25 || frames[len(frames)-1].ID != 29 {
		t.Errorf("Unexpected window bounds: %d-%d", frames[0].ID, frames[len(frames)-1].ID)
	}

	fb2 := NewFrameBuffer()
	for i := 0; i < 30; i++ {
		fb2.Append([]byte{byte(i)})
	}
	fb2.StartUtterance(0, time.Unix(3000, 0))
	frames = fb2.TentativeWindow(20)
	if len(frames) != 20 {
		t.Fatalf("Expected 20 newest frames, got %d", len(frames))
	}
	if frames[0].ID != 10 || frames[len(frames)-1].ID != 29 {
		t.Errorf("Unexpected window bounds: %d-%d", frames[0].ID, frames[len(frames)-1].ID)
	}
}

func TestFrameBufferClear(t *testing.T) {
	fb := NewFrameBuffer()
	fb.Append([]byte{0})
	fb.StartUtterance(0, time.Unix(3000, 0))

	fb.Clear()

	if fb.Len() != 0 || fb.OpenUtterance() != nil || fb.UtteranceCount() != 0 {
		t.Error("Clear should drop frames, open utterance and records")
	}
}
