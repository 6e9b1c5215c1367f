package vad

import (
	"time"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// Interval is a speech region within a buffer, in time offsets from the
// buffer start.
type Interval struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns the interval length.
func (iv Interval) Duration() time.Duration {
	return iv.End - iv.Start
}

// Segmenter partitions a whole PCM buffer into speech intervals. Used by
// the batch transcription path.
type Segmenter interface {
	// Segment returns the speech intervals of pcm (16 kHz mono s16le) in
	// ascending order.
	Segment(pcm []byte) ([]Interval, error)

	// Close releases segmenter resources.
	Close() error
}

// EnergySegmenter detects speech intervals by windowed RMS energy with the
// same smoothing the streaming controller uses. It is the fallback when the
// silero build tag is off.
type EnergySegmenter struct {
	floor     float64
	threshold float32
	smoothing int
}

// NewEnergySegmenter creates a segmenter with the service defaults.
func NewEnergySegmenter() *EnergySegmenter {
	return &EnergySegmenter{
		floor:     defaultEnergyFloor,
		threshold: config.VADSpeechThreshold,
		smoothing: config.VADSmoothingWindow,
	}
}

// Segment implements Segmenter.
func (s *EnergySegmenter) Segment(pcm []byte) ([]Interval, error) {
	if len(pcm) == 0 {
		return nil, nil
	}

	det := NewEnergyDetector(s.floor)

	var (
		intervals    []Interval
		speaking     bool
		speechCount  int
		silenceCount int
		start        time.Duration
		lastSpeech   time.Duration
	)

	for off := 0; off < len(pcm); off += config.ChunkSize {
		end := min(off+config.ChunkSize, len(pcm))
		prob, err := det.Infer(audio.BytesToFloat32(pcm[off:end]))
		if err != nil {
			return nil, err
		}

		if prob > s.threshold {
			speechCount = min(speechCount+1, s.smoothing)
			silenceCount = max(0, silenceCount-1)
			if !speaking && speechCount >= 1 {
				speaking = true
				start = audio.PCMDuration(off, config.SampleRate)
			}
			lastSpeech = audio.PCMDuration(end, config.SampleRate)
		} else {
			silenceCount = min(silenceCount+1, s.smoothing)
			speechCount = max(0, speechCount-1)
			if speaking && silenceCount >= s.smoothing {
				speaking = false
				intervals = append(intervals, Interval{Start: start, End: lastSpeech})
			}
		}
	}

	if speaking {
		intervals = append(intervals, Interval{Start: start, End: lastSpeech})
	}
	return intervals, nil
}

// Close implements Segmenter.
func (s *EnergySegmenter) Close() error {
	return nil
}

var _ Segmenter = (*EnergySegmenter)(nil)
