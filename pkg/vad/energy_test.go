package vad

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// sinePCM builds d worth of a 440 Hz tone at the given peak amplitude.
func sinePCM(d time.Duration, amp float64) []byte {
	n := int(d.Seconds() * config.SampleRate)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amp * 32767 * math.Sin(2*math.Pi*440*float64(i)/config.SampleRate))
	}
	return audio.Int16ToBytes(samples)
}

func TestEnergyDetectorProbabilities(t *testing.T) {
	det := NewEnergyDetector(0)

	prob, err := det.Infer(make([]float32, 512))
	require.NoError(t, err)
	assert.Zero(t, prob, "digital silence scores zero")

	loud := audio.BytesToFloat32(sinePCM(100*time.Millisecond, 0.5))
	prob, err = det.Infer(loud)
	require.NoError(t, err)
	assert.Greater(t, prob, float32(0.9))

	faint := audio.BytesToFloat32(sinePCM(100*time.Millisecond, 0.002))
	prob, err = det.Infer(faint)
	require.NoError(t, err)
	assert.Less(t, prob, float32(0.3))

	prob, err = det.Infer(nil)
	require.NoError(t, err)
	assert.Zero(t, prob)
}

func TestEnergyDetectorLifecycle(t *testing.T) {
	det := NewEnergyDetector(0.05)
	assert.NoError(t, det.Reset())
	assert.NoError(t, det.Destroy())
}

func TestEnergySegmenterFindsSpeechIntervals(t *testing.T) {
	// 1 s silence, 2 s tone, 1.5 s silence, 1 s tone.
	pcm := append([]byte{}, sinePCM(time.Second, 0)...)
	pcm = append(pcm, sinePCM(2*time.Second, 0.5)...)
	pcm = append(pcm, sinePCM(1500*time.Millisecond, 0)...)
	pcm = append(pcm, sinePCM(time.Second, 0.5)...)

	seg := NewEnergySegmenter()
	intervals, err := seg.Segment(pcm)
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	assert.InDelta(t, 1.0, intervals[0].Start.Seconds(), 0.2)
	assert.InDelta(t, 3.0, intervals[0].End.Seconds(), 0.2)
	assert.InDelta(t, 4.5, intervals[1].Start.Seconds(), 0.2)
	assert.InDelta(t, 5.5, intervals[1].End.Seconds(), 0.2)

	assert.NoError(t, seg.Close())
}

func TestEnergySegmenterSilence(t *testing.T) {
	seg := NewEnergySegmenter()

	intervals, err := seg.Segment(sinePCM(3*time.Second, 0))
	require.NoError(t, err)
	assert.Empty(t, intervals)

	intervals, err = seg.Segment(nil)
	require.NoError(t, err)
	assert.Empty(t, intervals)
}

func TestEnergySegmenterSpeechToBufferEnd(t *testing.T) {
	// Tone running into the end of the buffer still closes an interval.
	pcm := append([]byte{}, sinePCM(time.Second, 0)...)
	pcm = append(pcm, sinePCM(2*time.Second, 0.5)...)

	seg := NewEnergySegmenter()
	intervals, err := seg.Segment(pcm)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.InDelta(t, 1.0, intervals[0].Start.Seconds(), 0.2)
	assert.InDelta(t, 3.0, intervals[0].End.Seconds(), 0.2)
}
