package vad

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDetectorDefaults(t *testing.T) {
	mock := NewMockDetector()

	prob, err := mock.Infer([]float32{0.1, 0.2, 0.3})
	require.NoError(t, err)
	assert.Equal(t, float32(0.0), prob)

	assert.False(t, mock.ResetCalled)
	assert.False(t, mock.DestroyCalled)

	require.NoError(t, mock.Reset())
	assert.True(t, mock.ResetCalled)

	require.NoError(t, mock.Destroy())
	assert.True(t, mock.DestroyCalled)
}

func TestMockDetectorRecordsCalls(t *testing.T) {
	mock := NewMockDetector()

	mock.Infer([]float32{0.1, 0.2})
	mock.Infer([]float32{0.3, 0.4, 0.5})

	assert.Equal(t, 2, mock.GetInferCallCount())
	assert.Equal(t, []float32{0.1, 0.2}, mock.InferCalls[0])
	assert.Equal(t, []float32{0.3, 0.4, 0.5}, mock.InferCalls[1])
}

func TestMockDetectorFixedProbability(t *testing.T) {
	mock := NewMockDetectorWithProb(0.75)

	for range 3 {
		prob, err := mock.Infer([]float32{0.1})
		require.NoError(t, err)
		assert.Equal(t, float32(0.75), prob)
	}
}

func TestMockDetectorSequenceCycles(t *testing.T) {
	mock := NewMockDetectorWithSequence([]float32{0.1, 0.5, 0.9})

	var got []float32
	for range 4 {
		prob, err := mock.Infer(nil)
		require.NoError(t, err)
		got = append(got, prob)
	}

	// Fourth call wraps back to the start of the sequence.
	assert.Equal(t, []float32{0.1, 0.5, 0.9, 0.1}, got)
}

func TestMockDetectorEmptySequence(t *testing.T) {
	mock := NewMockDetectorWithSequence(nil)

	prob, err := mock.Infer(nil)
	require.NoError(t, err)
	assert.Equal(t, float32(0), prob)
}

func TestMockDetectorCustomInferFunc(t *testing.T) {
	wantErr := errors.New("model exploded")
	mock := &MockDetector{
		InferFunc: func(samples []float32) (float32, error) {
			if len(samples) == 0 {
				return 0, wantErr
			}
			return float32(len(samples)) / 100.0, nil
		},
	}

	prob, err := mock.Infer(make([]float32, 50))
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), prob)

	_, err = mock.Infer(nil)
	assert.ErrorIs(t, err, wantErr)

	assert.Equal(t, 2, mock.GetInferCallCount())
}

func TestMockDetectorConcurrentInfer(t *testing.T) {
	mock := NewMockDetectorWithProb(0.5)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				mock.Infer([]float32{1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, mock.GetInferCallCount())
}
