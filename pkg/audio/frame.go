package audio

import (
	"time"
)

// Frame is one fixed-size PCM chunk admitted from the client stream.
// Frames are immutable once created except for the Processed flag, which the
// VAD consumer flips via FrameBuffer.MarkProcessed.
type Frame struct {
	// ID is monotonic per connection, starting at 0 with no gaps.
	ID int64

	// CapturedAt is the wall-clock instant the frame was admitted.
	CapturedAt time.Time

	// PCM holds exactly one chunk of s16le mono audio.
	PCM []byte

	// Processed is set once the VAD controller has consumed the frame.
	Processed bool
}

// Utterance is a contiguous range of frames classified as speech.
// At most one utterance is open (Finalized=false) per buffer at any time.
type Utterance struct {
	// ID identifies the utterance in committed results; split sub-segments
	// append a "_part_N" suffix to it.
	ID string

	StartFrameID int64
	StartTime    time.Time

	// EndFrameID is -1 until the utterance is finalized.
	EndFrameID int64
	EndTime    time.Time

	// Transcript holds the final text only; tentative text never lands here.
	Transcript string

	Finalized bool
	CreatedAt time.Time
}

// Duration returns the utterance length. For an open utterance this is the
// time elapsed since it started.
func (u *Utterance) Duration() time.Duration {
	if !u.Finalized || u.EndTime.IsZero() {
		return time.Since(u.StartTime)
	}
	return u.EndTime.Sub(u.StartTime)
}
