package audio

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Resampler converts s16le PCM between sample rates and channel layouts
// using FFmpeg's software resampler. It is not safe for concurrent use.
type Resampler struct {
	ctx       *astiav.SoftwareResampleContext
	inFrame   *astiav.Frame
	outFrame  *astiav.Frame
	inLayout  astiav.ChannelLayout
	outLayout astiav.ChannelLayout
	inRate    int
	outRate   int
}

// NewResampler creates a resampler for the given rates and layouts.
func NewResampler(inRate, outRate int, inLayout, outLayout astiav.ChannelLayout) (*Resampler, error) {
	if inRate <= 0 {
		return nil, fmt.Errorf("invalid input sample rate: %d", inRate)
	}
	if outRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", outRate)
	}

	r := &Resampler{
		inRate:    inRate,
		outRate:   outRate,
		inLayout:  inLayout,
		outLayout: outLayout,
	}

	r.ctx = astiav.AllocSoftwareResampleContext()
	if r.ctx == nil {
		return nil, fmt.Errorf("failed to allocate resample context")
	}

	r.inFrame = astiav.AllocFrame()
	if r.inFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate input frame")
	}

	r.outFrame = astiav.AllocFrame()
	if r.outFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate output frame")
	}

	return r, nil
}

// Free releases the FFmpeg resources.
func (r *Resampler) Free() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
	if r.inFrame != nil {
		r.inFrame.Free()
		r.inFrame = nil
	}
	if r.outFrame != nil {
		r.outFrame.Free()
		r.outFrame = nil
	}
}

// Convert resamples one block of interleaved s16le PCM.
func (r *Resampler) Convert(input []byte) ([]byte, error) {
	const align = 0

	if len(input) == 0 {
		return nil, fmt.Errorf("empty input data")
	}

	inChannels, err := layoutChannels(r.inLayout)
	if err != nil {
		return nil, err
	}
	bytesPerFrame := 2 * inChannels

	numSamples := len(input) / bytesPerFrame
	if numSamples == 0 {
		return nil, fmt.Errorf("input data too small")
	}

	r.inFrame.Unref()
	r.outFrame.Unref()

	r.inFrame.SetChannelLayout(r.inLayout)
	r.inFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.inFrame.SetSampleRate(r.inRate)
	r.inFrame.SetNbSamples(numSamples)

	r.outFrame.SetChannelLayout(r.outLayout)
	r.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.outFrame.SetSampleRate(r.outRate)

	outNumSamples := (numSamples * r.outRate) / r.inRate
	if outNumSamples == 0 {
		outNumSamples = 1
	}
	r.outFrame.SetNbSamples(outNumSamples)

	if err := r.inFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate input buffer: %w", err)
	}
	if err := r.outFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate output buffer: %w", err)
	}
	if err := r.inFrame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("making frame writable failed: %w", err)
	}

	// FFmpeg may require a larger aligned buffer than the raw sample count.
	actualBufferSize, err := r.inFrame.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("failed to get buffer size: %w", err)
	}

	inputBuffer := input
	if len(input) < actualBufferSize {
		inputBuffer = make([]byte, actualBufferSize)
		copy(inputBuffer, input)
	}

	if err := r.inFrame.Data().SetBytes(inputBuffer[:actualBufferSize], align); err != nil {
		return nil, fmt.Errorf("setting frame's data failed: %w", err)
	}

	if err := r.ctx.ConvertFrame(r.inFrame, r.outFrame); err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}

	outputData, err := r.outFrame.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("getting output data failed: %w", err)
	}

	outChannels, err := layoutChannels(r.outLayout)
	if err != nil {
		return nil, err
	}
	want := r.outFrame.NbSamples() * 2 * outChannels
	if want > 0 && want < len(outputData) {
		outputData = outputData[:want]
	}

	return outputData, nil
}

func layoutChannels(layout astiav.ChannelLayout) (int, error) {
	switch layout {
	case astiav.ChannelLayoutMono:
		return 1, nil
	case astiav.ChannelLayoutStereo:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported channel layout")
	}
}

// ConvertTo16kMono converts interleaved s16le PCM with an arbitrary source
// rate and 1 or 2 channels into the pipeline's native 16 kHz mono format.
func ConvertTo16kMono(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate == 16000 && channels == 1 {
		return pcm, nil
	}

	inLayout := astiav.ChannelLayoutMono
	if channels == 2 {
		inLayout = astiav.ChannelLayoutStereo
	} else if channels != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d", channels)
	}

	r, err := NewResampler(sampleRate, 16000, inLayout, astiav.ChannelLayoutMono)
	if err != nil {
		return nil, err
	}
	defer r.Free()

	return r.Convert(pcm)
}
