package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeWAV wraps raw s16le PCM in a minimal RIFF/WAVE container. The ASR
// engines expect standard audio files rather than bare PCM.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer

	const bitsPerSample = 16

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV extracts s16le PCM from a RIFF/WAVE file. Only uncompressed
// 16-bit PCM is supported; other encodings return an error.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var fmtSeen bool
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, 0, fmt.Errorf("malformed fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return nil, 0, 0, fmt.Errorf("unsupported audio format %d (PCM only)", audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, 0, 0, fmt.Errorf("unsupported bit depth %d (16-bit only)", bits)
			}
			fmtSeen = true
		case "data":
			pcm = data[body : body+chunkLen]
		}

		// Chunks are word-aligned.
		pos = body + chunkLen
		if chunkLen%2 == 1 {
			pos++
		}
	}

	if !fmtSeen {
		return nil, 0, 0, fmt.Errorf("missing fmt chunk")
	}
	if pcm == nil {
		return nil, 0, 0, fmt.Errorf("missing data chunk")
	}
	return pcm, sampleRate, channels, nil
}

// WAVWriter incrementally writes a 16-bit PCM WAV file to a seekable sink.
// The header is written with placeholder sizes and patched on Finalize.
type WAVWriter struct {
	ws         io.WriteSeeker
	dataBytes  uint32
	sampleRate int
	channels   int
	finalized  bool
}

// NewWAVWriter writes the WAV header and returns a writer ready to accept
// PCM data.
func NewWAVWriter(ws io.WriteSeeker, sampleRate, channels int) (*WAVWriter, error) {
	w := &WAVWriter{ws: ws, sampleRate: sampleRate, channels: channels}
	header := EncodeWAV(nil, sampleRate, channels)
	if _, err := ws.Write(header); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

// Write appends PCM bytes to the data chunk.
func (w *WAVWriter) Write(pcm []byte) (int, error) {
	if w.finalized {
		return 0, fmt.Errorf("wav writer already finalized")
	}
	n, err := w.ws.Write(pcm)
	w.dataBytes += uint32(n)
	return n, err
}

// DataBytes returns the number of PCM bytes written so far.
func (w *WAVWriter) DataBytes() int {
	return int(w.dataBytes)
}

// Finalize patches the RIFF and data chunk sizes. The writer is unusable
// afterwards.
func (w *WAVWriter) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	// RIFF size at offset 4, data size at offset 40.
	if _, err := w.ws.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("seek riff size: %w", err)
	}
	if err := binary.Write(w.ws, binary.LittleEndian, uint32(36+w.dataBytes)); err != nil {
		return fmt.Errorf("patch riff size: %w", err)
	}
	if _, err := w.ws.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("seek data size: %w", err)
	}
	if err := binary.Write(w.ws, binary.LittleEndian, w.dataBytes); err != nil {
		return fmt.Errorf("patch data size: %w", err)
	}
	return nil
}
