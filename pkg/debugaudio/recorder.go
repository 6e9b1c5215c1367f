// Package debugaudio archives the PCM a session admits to a per-session WAV
// file, for offline inspection of what the pipeline actually heard. The
// recorder is strictly best effort: disk trouble is logged and capture is
// disabled, never surfaced to the session.
package debugaudio

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
)

// SessionStamp formats t the way session directories are named.
func SessionStamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// Recorder appends one client's PCM to
// <baseDir>/session_<stamp>/<clientID>.wav. All methods are nil-safe so a
// session without debug capture can hold a nil recorder.
type Recorder struct {
	clientID   string
	sessionDir string
	path       string

	mu     sync.Mutex
	file   *os.File
	writer *audio.WAVWriter
	failed bool
	closed bool
}

// NewRecorder creates the session directory and the WAV file for clientID.
func NewRecorder(baseDir, stamp, clientID string) (*Recorder, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}
	if clientID == "" {
		return nil, fmt.Errorf("client id cannot be empty")
	}

	sessionDir := filepath.Join(baseDir, "session_"+stamp)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	path := filepath.Join(sessionDir, clientID+".wav")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create debug audio file: %w", err)
	}
	writer, err := audio.NewWAVWriter(file, config.SampleRate, 1)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	log.Printf("[DebugAudio] %s: archiving audio to %s", clientID, path)
	return &Recorder{
		clientID:   clientID,
		sessionDir: sessionDir,
		path:       path,
		file:       file,
		writer:     writer,
	}, nil
}

// Path returns the WAV file path.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Write appends PCM bytes. The first write error disables further capture.
func (r *Recorder) Write(pcm []byte) {
	if r == nil || len(pcm) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.failed {
		return
	}
	if _, err := r.writer.Write(pcm); err != nil {
		log.Printf("[DebugAudio] %s: write failed, disabling capture: %v", r.clientID, err)
		r.failed = true
	}
}

// Close finalizes the WAV header and releases the file. A recording that
// captured no audio is deleted, along with its session directory if that
// leaves the directory empty. Safe to call more than once.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	if err := r.writer.Finalize(); err != nil {
		log.Printf("[DebugAudio] %s: finalize failed: %v", r.clientID, err)
	}
	empty := r.writer.DataBytes() == 0
	if err := r.file.Close(); err != nil {
		log.Printf("[DebugAudio] %s: close failed: %v", r.clientID, err)
	}
	log.Printf("[DebugAudio] %s: recording closed (%d bytes)", r.clientID, r.writer.DataBytes())

	if !empty {
		return
	}
	if err := os.Remove(r.path); err != nil {
		log.Printf("[DebugAudio] %s: remove empty recording: %v", r.clientID, err)
		return
	}
	// Remove succeeds only when no sibling recordings remain.
	os.Remove(r.sessionDir)
}
