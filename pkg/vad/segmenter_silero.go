//go:build vad

package vad

import (
	"fmt"
	"sync"
	"time"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// SileroSegmenter partitions buffers with the silero speech detector. One
// instance is shared by all batch jobs; Segment serializes access because
// the detector is stateful.
type SileroSegmenter struct {
	mu  sync.Mutex
	det *speech.Detector
}

// NewSileroSegmenter loads the silero model at modelPath.
func NewSileroSegmenter(modelPath string) (*SileroSegmenter, error) {
	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           config.SampleRate,
		Threshold:            config.VADSpeechThreshold,
		MinSilenceDurationMs: 1000,
		SpeechPadMs:          30,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create silero segmenter: %w", err)
	}
	return &SileroSegmenter{det: det}, nil
}

// Segment implements Segmenter.
func (s *SileroSegmenter) Segment(pcm []byte) ([]Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// State carries over between buffers; start each one fresh.
	if err := s.det.Reset(); err != nil {
		return nil, fmt.Errorf("failed to reset silero segmenter: %w", err)
	}

	segments, err := s.det.Detect(audio.BytesToFloat32(pcm))
	if err != nil {
		return nil, fmt.Errorf("silero detection failed: %w", err)
	}

	total := audio.PCMDuration(len(pcm), config.SampleRate)
	intervals := make([]Interval, 0, len(segments))
	for _, seg := range segments {
		iv := Interval{
			Start: time.Duration(seg.SpeechStartAt * float64(time.Second)),
			End:   time.Duration(seg.SpeechEndAt * float64(time.Second)),
		}
		// Speech running into the end of the buffer has no end timestamp.
		if iv.End <= iv.Start {
			iv.End = total
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// Close implements Segmenter.
func (s *SileroSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.det.Destroy()
}

var _ Segmenter = (*SileroSegmenter)(nil)
