// Package server hosts the speech-to-text service: the /ws streaming
// endpoint, the batch transcription endpoint and the health and
// introspection routes. One Server shares a single ASR engine and a single
// VAD detector across every session.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxstream/voxstream/pkg/asr"
	"github.com/voxstream/voxstream/pkg/batch"
	"github.com/voxstream/voxstream/pkg/config"
	"github.com/voxstream/voxstream/pkg/protocol"
	"github.com/voxstream/voxstream/pkg/vad"
)

const (
	// maxUploadBytes caps a batch upload's in-memory form parse.
	maxUploadBytes = 64 << 20

	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP/WebSocket front of the service.
type Server struct {
	cfg      *config.Config
	engine   asr.Engine
	detector vad.DetectorInterface
	pipeline *batch.Pipeline

	mu       sync.RWMutex
	sessions map[string]*Session
	defaults vad.Settings
	started  bool

	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
}

// NewServer creates a server around the shared engines. engine and detector
// may be nil when model loading failed; the HTTP routes stay up and report
// the outage, streaming clients get a 503 error message.
func NewServer(cfg *config.Config, engine asr.Engine, detector vad.DetectorInterface, segmenter vad.Segmenter) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server requires a config")
	}

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		detector: detector,
		sessions: make(map[string]*Session),
		defaults: vad.DefaultSettings(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}

	if engine != nil {
		pipeline, err := batch.NewPipeline(engine, segmenter)
		if err != nil {
			return nil, err
		}
		s.pipeline = pipeline
	}

	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/debug/config", s.handleDebugConfig)
	s.mux.HandleFunc("/vad/status", s.handleVADStatus)
	s.mux.HandleFunc("/vad/config", s.handleVADConfig)
	s.mux.HandleFunc("/transcribe/file", s.handleTranscribeFile)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.mux,
		ReadHeaderTimeout: config.ReadTimeout,
	}

	return s, nil
}

// Start begins listening. It returns an error if the listener fails to come
// up within the startup window.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.UseHTTPS {
			log.Printf("[Server] listening on https://%s (ws: wss://%s/ws)", s.cfg.Addr(), s.cfg.Addr())
			err = s.httpServer.ListenAndServeTLS(s.cfg.SSLCert, s.cfg.SSLKey)
		} else {
			log.Printf("[Server] listening on http://%s (ws: ws://%s/ws)", s.cfg.Addr(), s.cfg.Addr())
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Give the listener a moment to fail fast on bind errors.
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop closes every session and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sess := range sessions {
		sess.Close()
	}

	ctx, cancelTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelTimeout()
	return s.httpServer.Shutdown(ctx)
}

// SessionCount returns the number of live streaming sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) defaultSettings() vad.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

func (s *Server) register(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.clientID] = sess
	count := len(s.sessions)
	s.mu.Unlock()
	log.Printf("[Server] session registered: %s (active: %d)", sess.clientID, count)
}

func (s *Server) unregister(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.clientID)
	count := len(s.sessions)
	s.mu.Unlock()
	log.Printf("[Server] session removed: %s (active: %d)", sess.clientID, count)
}

// handleWebSocket upgrades the connection and services it until it ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] websocket upgrade failed: %v", err)
		return
	}

	clientID := generateClientID()
	log.Printf("[Server] client connected: %s from %s", clientID, getClientIP(r))

	if s.engine == nil || s.detector == nil {
		log.Printf("[Server] %s: rejecting session, models not loaded", clientID)
		conn.WriteJSON(protocol.NewConnectionEstablished(clientID, s.cfg.DebugAudioEnabled))
		conn.WriteJSON(protocol.NewErrorMessage(protocol.ErrCodeServiceUnavailable, "models not loaded, audio cannot be processed", clientID))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		return
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = r.Context()
	}

	sess, err := newSession(ctx, conn, clientID, s.engine, s.detector, s.defaultSettings(), s.cfg, s.unregister)
	if err != nil {
		log.Printf("[Server] %s: session setup failed: %v", clientID, err)
		conn.Close()
		return
	}

	s.register(sess)
	sess.run()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := protocol.HealthResponse{
		Status:    "healthy",
		Service:   config.ServiceName,
		Version:   config.ServiceVersion,
		Timestamp: protocol.UnixNow(),
		Models: protocol.HealthModels{
			ASRLoaded: s.engine != nil,
			VADLoaded: s.detector != nil,
		},
		Configuration: protocol.HealthConfiguration{
			SampleRate:        config.SampleRate,
			ChunkDurationMs:   config.ChunkDurationMs,
			MaxBufferSeconds:  config.MaxAudioBufferSeconds,
			VADEnabled:        s.defaultSettings().Enabled,
			ActiveConnections: s.SessionCount(),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	httpScheme, wsScheme := "http", "ws"
	if s.cfg.UseHTTPS {
		httpScheme, wsScheme = "https", "wss"
	}

	defaults := s.defaultSettings()
	resp := protocol.DebugConfigResponse{
		APIBaseURL:   fmt.Sprintf("%s://%s", httpScheme, s.cfg.Addr()),
		WebSocketURL: fmt.Sprintf("%s://%s/ws", wsScheme, s.cfg.Addr()),
		AudioProcessing: protocol.DebugAudioProcessing{
			ChunkDurationMs:  config.ChunkDurationMs,
			ChunkSizeBytes:   config.ChunkSize,
			MaxBufferSeconds: config.MaxAudioBufferSeconds,
		},
		VAD: protocol.DebugVADConfiguration{
			SmoothingWindow:      defaults.SmoothingWindow,
			SpeechThreshold:      defaults.SpeechThreshold,
			ProcessingIntervalMs: config.ChunkDurationMs,
		},
		Transcription: protocol.DebugTranscriptionConfiguration{
			TemporaryIntervalChunks: config.TemporaryTranscriptionInterval,
			MaxSegmentDuration:      config.MaxSegmentDuration.Seconds(),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVADStatus probes the shared detector with a silent window and
// reports the live thresholds.
func (s *Server) handleVADStatus(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		writeJSON(w, http.StatusServiceUnavailable, protocol.ErrorResponse{
			Status:  "error",
			Message: "VAD detector not loaded",
		})
		return
	}

	probe := make([]float32, config.SampleRate/10)
	prob, err := s.detector.Infer(probe)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("detector probe failed: %v", err),
		})
		return
	}

	defaults := s.defaultSettings()
	resp := protocol.VADStatusResponse{
		Status: "active",
		Engine: fmt.Sprintf("%T", s.detector),
		Configuration: protocol.VADStatusConfiguration{
			SmoothingWindow: defaults.SmoothingWindow,
			SpeechThreshold: defaults.SpeechThreshold,
			ProcessWindow:   config.VADProcessWindow,
			ThresholdMin:    config.VADThresholdMin,
			ThresholdMax:    config.VADThresholdMax,
		},
		TestProbability: float64(prob),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVADConfig updates the VAD defaults applied to new sessions.
// Sessions already running keep their settings; they reconfigure through
// the vad_config control message.
func (s *Server) handleVADConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorResponse{
			Status:  "error",
			Message: "method not allowed",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("failed to read body: %v", err),
		})
		return
	}

	var payload protocol.VADConfigPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}
	if err := payload.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	s.mu.Lock()
	if payload.Enabled != nil {
		s.defaults.Enabled = *payload.Enabled
	}
	if payload.SpeechThreshold != nil {
		s.defaults.SpeechThreshold = *payload.SpeechThreshold
	}
	if payload.SmoothingWindow != nil {
		s.defaults.SmoothingWindow = *payload.SmoothingWindow
	}
	s.mu.Unlock()

	log.Printf("[Server] vad defaults updated")
	writeJSON(w, http.StatusOK, protocol.VADConfigResponse{
		Status:  "success",
		Config:  payload,
		Message: "VAD configuration updated",
	})
}

// handleTranscribeFile transcribes an uploaded recording, either as an
// NDJSON stream of progress records or as one aggregated JSON response.
func (s *Server) handleTranscribeFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorResponse{
			Status:  "error",
			Message: "method not allowed",
		})
		return
	}
	if s.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, protocol.ErrorResponse{
			Status:  "error",
			Message: "models not loaded",
		})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("invalid multipart form: %v", err),
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Status:  "error",
			Message: "missing file field",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("failed to read upload: %v", err),
		})
		return
	}

	req := batch.Request{
		Filename:   header.Filename,
		Data:       data,
		VADEnabled: boolParam(r, "vad_enabled", true),
		Hotwords:   splitHotwords(r.FormValue("hotwords")),
	}
	log.Printf("[Server] file upload: %s (%d bytes, vad=%v)", req.Filename, len(data), req.VADEnabled)

	if !boolParam(r, "stream", true) {
		result, err := s.pipeline.RunCollect(r.Context(), req)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
				Status:  "error",
				Message: err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	wrote := false
	sink := func(record interface{}) error {
		if err := enc.Encode(record); err != nil {
			return err
		}
		wrote = true
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := s.pipeline.Run(r.Context(), req, sink); err != nil {
		if !wrote {
			// Nothing streamed yet, a regular error response still works.
			w.Header().Set("Content-Type", "application/json")
			writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
				Status:  "error",
				Message: err.Error(),
			})
			return
		}
		log.Printf("[Server] %s: batch stream aborted: %v", req.Filename, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Server] failed to write response: %v", err)
	}
}

// boolParam reads a query or form boolean with a default for absent values.
func boolParam(r *http.Request, name string, def bool) bool {
	raw := r.FormValue(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// splitHotwords parses a comma separated hotword list. Normalization
// happens in the ASR layer.
func splitHotwords(raw string) []string {
	if raw == "" {
		return nil
	}
	var words []string
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// generateClientID builds the wire-visible session id.
func generateClientID() string {
	return fmt.Sprintf("client_%d_%s", time.Now().Unix(), generateShortID())
}

// generateShortID generates a short random ID.
func generateShortID() string {
	return uuid.New().String()[:8]
}

// getClientIP extracts the client IP address from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}
