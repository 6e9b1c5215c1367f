package stream

import (
	"log"
	"math"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// Ingress admits binary audio payloads into the frame ring. Payloads of any
// size are normalized to exact ChunkSize frames:
//   - empty payloads are discarded with a warning,
//   - undersized payloads are zero-padded on the right,
//   - oversized payloads are split into full frames and the remaining tail
//     is dropped, never carried over to the next payload.
type Ingress struct {
	buffer   *audio.FrameBuffer
	clientID string
	debug    bool
}

// NewIngress creates an ingress feeding buffer.
func NewIngress(buffer *audio.FrameBuffer, clientID string, debug bool) *Ingress {
	return &Ingress{
		buffer:   buffer,
		clientID: clientID,
		debug:    debug,
	}
}

// Accept normalizes one payload into frames and appends them to the buffer.
// Returns the number of admitted frames. The payload is copied; frames keep
// their PCM beyond this call while the transport may reuse the slice.
func (in *Ingress) Accept(payload []byte) int {
	if len(payload) == 0 {
		log.Printf("[Ingress] %s: empty audio payload discarded", in.clientID)
		return 0
	}

	admitted := 0
	switch {
	case len(payload) == config.ChunkSize:
		in.append(payload)
		admitted = 1

	case len(payload) < config.ChunkSize:
		padded := make([]byte, config.ChunkSize)
		copy(padded, payload)
		frame := in.buffer.Append(padded)
		in.logFrame(frame, len(payload))
		admitted = 1

	default:
		full := len(payload) / config.ChunkSize
		for i := 0; i < full; i++ {
			in.append(payload[i*config.ChunkSize : (i+1)*config.ChunkSize])
		}
		admitted = full
		if tail := len(payload) % config.ChunkSize; tail > 0 && in.debug {
			log.Printf("[Ingress] %s: dropped %d-byte tail of oversized payload", in.clientID, tail)
		}
	}

	return admitted
}

func (in *Ingress) append(chunk []byte) {
	pcm := make([]byte, config.ChunkSize)
	copy(pcm, chunk)
	frame := in.buffer.Append(pcm)
	in.logFrame(frame, len(chunk))
}

func (in *Ingress) logFrame(frame *audio.Frame, payloadLen int) {
	if !in.debug {
		return
	}
	rms, peak := pcmMetrics(frame.PCM)
	log.Printf("[Ingress] %s: frame %d admitted (%d payload bytes, rms=%.2f, peak=%d)",
		in.clientID, frame.ID, payloadLen, rms, peak)
}

// pcmMetrics computes RMS and peak amplitude of s16le samples for debug
// logging.
func pcmMetrics(pcm []byte) (float64, int) {
	samples := audio.BytesToInt16(pcm)
	if len(samples) == 0 {
		return 0, 0
	}

	var sum float64
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples))), peak
}
