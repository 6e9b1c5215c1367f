package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	pcm := Int16ToBytes([]int16{0, 100, -100, 32767, -32768, 42})
	wav := EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("Expected %d bytes, got %d", 44+len(pcm), len(wav))
	}

	decoded, rate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("Expected 16000 Hz mono, got %d Hz %d ch", rate, channels)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Error("Decoded PCM does not match input")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("too short"),
		[]byte("RIFFxxxxJUNKdata and more padding to pass length"),
	}
	for _, data := range cases {
		if _, _, _, err := DecodeWAV(data); err == nil {
			t.Errorf("Expected error for %q", data)
		}
	}
}

func TestDecodeWAVRejectsNonPCMFormats(t *testing.T) {
	wav := EncodeWAV(Int16ToBytes([]int16{1, 2, 3}), 16000, 1)

	floatFmt := append([]byte(nil), wav...)
	floatFmt[20] = 3 // IEEE float
	if _, _, _, err := DecodeWAV(floatFmt); err == nil {
		t.Error("Expected error for non-PCM audio format")
	}

	eightBit := append([]byte(nil), wav...)
	eightBit[34] = 8
	if _, _, _, err := DecodeWAV(eightBit); err == nil {
		t.Error("Expected error for 8-bit samples")
	}
}

func TestWAVWriterFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWAVWriter(f, 16000, 1)
	if err != nil {
		t.Fatalf("NewWAVWriter failed: %v", err)
	}

	first := Int16ToBytes([]int16{10, 20, 30})
	second := Int16ToBytes([]int16{-10, -20})
	if _, err := w.Write(first); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(second); err != nil {
		t.Fatal(err)
	}
	if w.DataBytes() != len(first)+len(second) {
		t.Errorf("Expected %d data bytes, got %d", len(first)+len(second), w.DataBytes())
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pcm, rate, channels, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("Expected 16000 Hz mono, got %d Hz %d ch", rate, channels)
	}
	if !bytes.Equal(pcm, append(append([]byte(nil), first...), second...)) {
		t.Error("File PCM does not match written chunks")
	}
}
