package audio

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/hraban/opus"
)

// opusStreamRate is the fixed output rate of libopusfile decoding.
const opusStreamRate = 48000

// DecodeUpload converts an uploaded audio file into 16 kHz mono s16le PCM.
// WAV (16-bit PCM) and Ogg/Opus containers are supported; anything else is
// rejected. filename is used only for format detection hints.
func DecodeUpload(data []byte, filename string) ([]byte, error) {
	switch {
	case looksLikeWAV(data):
		pcm, rate, channels, err := DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("decode wav: %w", err)
		}
		out, err := ConvertTo16kMono(pcm, rate, channels)
		if err != nil {
			return nil, fmt.Errorf("convert wav audio: %w", err)
		}
		return out, nil

	case looksLikeOgg(data):
		pcm, err := decodeOggOpus(data)
		if err != nil {
			return nil, fmt.Errorf("decode ogg/opus: %w", err)
		}
		out, err := ConvertTo16kMono(pcm, opusStreamRate, 1)
		if err != nil {
			return nil, fmt.Errorf("convert opus audio: %w", err)
		}
		return out, nil

	case strings.HasSuffix(strings.ToLower(filename), ".pcm") || strings.HasSuffix(strings.ToLower(filename), ".raw"):
		// Raw uploads are trusted to already be 16 kHz mono s16le.
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported audio format (wav, ogg/opus or raw pcm expected)")
	}
}

func looksLikeWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func looksLikeOgg(data []byte) bool {
	return len(data) >= 4 && string(data[0:4]) == "OggS"
}

// decodeOggOpus decodes an Ogg/Opus stream to 48 kHz s16le PCM. Voice
// uploads are treated as mono recordings.
func decodeOggOpus(data []byte) ([]byte, error) {
	stream, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open opus stream: %w", err)
	}
	defer stream.Close()

	var samples []int16
	buf := make([]int16, 16384)
	for {
		n, err := stream.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read opus stream: %w", err)
		}
		if n == 0 {
			break
		}
		samples = append(samples, buf[:n]...)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("empty opus stream")
	}
	return Int16ToBytes(samples), nil
}
