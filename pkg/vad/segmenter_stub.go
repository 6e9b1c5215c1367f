//go:build !vad

package vad

// SileroSegmenter is a stub for builds without the 'vad' tag.
// NewSileroSegmenter always fails; callers fall back to the energy
// segmenter.
type SileroSegmenter struct{}

// NewSileroSegmenter returns an error indicating that silero support is not
// built in.
func NewSileroSegmenter(modelPath string) (*SileroSegmenter, error) {
	return nil, errNoSilero
}

// Segment implements Segmenter for the stub.
func (s *SileroSegmenter) Segment(pcm []byte) ([]Interval, error) {
	return nil, errNoSilero
}

// Close implements Segmenter for the stub.
func (s *SileroSegmenter) Close() error {
	return nil
}

var _ Segmenter = (*SileroSegmenter)(nil)
