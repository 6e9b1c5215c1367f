package server

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxstream/voxstream/pkg/asr"
	"github.com/voxstream/voxstream/pkg/audio"
	"github.com/voxstream/voxstream/pkg/config"
	"github.com/voxstream/voxstream/pkg/debugaudio"
	"github.com/voxstream/voxstream/pkg/protocol"
	"github.com/voxstream/voxstream/pkg/stream"
	"github.com/voxstream/voxstream/pkg/trace"
	"github.com/voxstream/voxstream/pkg/vad"
)

// wsWriteWait bounds every write to the peer, close frame included.
const wsWriteWait = 10 * time.Second

// wsSender is the Sender behind the session's emitter. gorilla permits one
// concurrent writer per connection, so the mutex also covers the close
// frame.
type wsSender struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (w *wsSender) Send(msg interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.WriteJSON(msg)
}

func (w *wsSender) writeClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Session owns one streaming connection: the socket, the per-connection
// pipeline stages (ingress, VAD controller, coordinator, emitter) and the
// optional debug recorder. The ASR engine and VAD detector are shared
// process singletons; everything else here belongs to this connection.
type Session struct {
	clientID   string
	stamp      string
	debugAudio bool
	conn       *websocket.Conn
	sender     *wsSender

	buffer      *audio.FrameBuffer
	ingress     *stream.Ingress
	controller  *vad.Controller
	coordinator *stream.Coordinator
	emitter     *stream.Emitter
	recorder    *debugaudio.Recorder

	ctx       context.Context
	cancel    context.CancelFunc
	onClose   func(*Session)
	closeOnce sync.Once
}

// newSession builds the per-connection pipeline around an upgraded
// websocket. settings seed the VAD controller; onClose runs once when the
// session ends.
func newSession(ctx context.Context, conn *websocket.Conn, clientID string, engine asr.Engine, detector vad.DetectorInterface, settings vad.Settings, cfg *config.Config, onClose func(*Session)) (*Session, error) {
	debug := cfg.DebugEnabled()
	sender := &wsSender{conn: conn, timeout: wsWriteWait}

	emitter, err := stream.NewEmitter(sender, clientID, debug)
	if err != nil {
		return nil, err
	}

	buffer := audio.NewFrameBuffer()

	ctrlCfg := vad.DefaultControllerConfig()
	ctrlCfg.Enabled = settings.Enabled
	if settings.SmoothingWindow >= 1 {
		ctrlCfg.SmoothingWindow = settings.SmoothingWindow
	}
	ctrlCfg.Debug = debug
	controller, err := vad.NewController(detector, buffer, ctrlCfg)
	if err != nil {
		return nil, err
	}
	controller.ApplySettings(settings)

	coordCfg := stream.DefaultCoordinatorConfig()
	coordCfg.Debug = debug
	coordinator, err := stream.NewCoordinator(engine, buffer, emitter, controller.Events(), clientID, coordCfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		clientID:    clientID,
		stamp:       debugaudio.SessionStamp(time.Now()),
		debugAudio:  cfg.DebugAudioEnabled,
		conn:        conn,
		sender:      sender,
		buffer:      buffer,
		ingress:     stream.NewIngress(buffer, clientID, debug),
		controller:  controller,
		coordinator: coordinator,
		emitter:     emitter,
		onClose:     onClose,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	if cfg.DebugAudioEnabled {
		rec, err := debugaudio.NewRecorder(cfg.DebugAudioBaseDir, s.stamp, clientID)
		if err != nil {
			log.Printf("[Session] %s: debug audio capture unavailable: %v", clientID, err)
		} else {
			s.recorder = rec
		}
	}

	return s, nil
}

// run services the connection until the peer disconnects, asks to close or
// goes idle. It blocks; the caller owns the connection goroutine.
func (s *Session) run() {
	defer s.Close()

	if err := s.emitter.Start(s.ctx); err != nil {
		log.Printf("[Session] %s: emitter start failed: %v", s.clientID, err)
		return
	}
	if err := s.coordinator.Start(s.ctx); err != nil {
		log.Printf("[Session] %s: coordinator start failed: %v", s.clientID, err)
		return
	}
	if err := s.controller.Start(s.ctx); err != nil {
		log.Printf("[Session] %s: vad controller start failed: %v", s.clientID, err)
		return
	}

	s.emitter.Send(protocol.NewConnectionEstablished(s.clientID, s.debugAudio))
	if s.recorder != nil {
		s.emitter.Send(protocol.NewDebugAudioInfo(s.stamp, s.recorder.Path()))
	}

	_, span := trace.InstrumentSessionStart(s.ctx, s.clientID)
	span.End()

	s.readLoop()
}

func (s *Session) readLoop() {
	lastActivity := time.Now()
	for {
		if s.ctx.Err() != nil {
			return
		}

		// gorilla read errors are permanent, so the idle budget is enforced
		// through the read deadline rather than a receive-poll loop.
		s.conn.SetReadDeadline(lastActivity.Add(config.IdleTimeout))
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("[Session] %s: no activity for %s, closing", s.clientID, config.IdleTimeout)
				s.sender.Send(protocol.NewErrorMessage(protocol.ErrCodeIdleTimeout, "connection timed out: no activity for 30 seconds", s.clientID))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Session] %s: read error: %v", s.clientID, err)
			}
			return
		}

		lastActivity = time.Now()
		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(payload)
		case websocket.TextMessage:
			if s.handleControl(payload) {
				return
			}
		}
	}
}

func (s *Session) handleAudio(payload []byte) {
	if s.recorder != nil && len(payload) > 0 {
		s.recorder.Write(archivePortion(payload))
	}
	s.ingress.Accept(payload)
}

// archivePortion mirrors what ingress admits from a payload: undersized
// payloads padded to a whole chunk, oversized ones truncated to whole
// chunks with the tail dropped.
func archivePortion(payload []byte) []byte {
	switch {
	case len(payload) < config.ChunkSize:
		padded := make([]byte, config.ChunkSize)
		copy(padded, payload)
		return padded
	case len(payload) > config.ChunkSize:
		return payload[:len(payload)/config.ChunkSize*config.ChunkSize]
	default:
		return payload
	}
}

// handleControl dispatches one text frame. It reports whether the session
// should end.
func (s *Session) handleControl(payload []byte) bool {
	msg, err := protocol.ParseClientMessage(payload)
	if err != nil {
		log.Printf("[Session] %s: bad control message: %v", s.clientID, err)
		s.emitter.Send(protocol.NewErrorMessage(protocol.ErrCodeBadRequest, err.Error(), s.clientID))
		return false
	}

	switch m := msg.(type) {
	case *protocol.PingMessage:
		s.emitter.Send(protocol.NewPong(s.clientID))

	case *protocol.GetStateMessage:
		s.emitter.Send(s.snapshot())

	case *protocol.VADConfigMessage:
		s.applyVADConfig(m.Config)

	case *protocol.CloseMessage:
		log.Printf("[Session] %s: close requested by client", s.clientID)
		return true
	}
	return false
}

func (s *Session) snapshot() *protocol.ConnectionState {
	return &protocol.ConnectionState{
		Type:          protocol.MessageTypeConnectionState,
		ClientID:      s.clientID,
		BufferSize:    s.buffer.Len(),
		ActiveSegment: s.buffer.OpenUtterance() != nil,
		VADState:      s.controller.Speaking(),
		LastChunkID:   s.buffer.LastFrameID(),
		Timestamp:     protocol.UnixNow(),
		AudioConfig:   protocol.DefaultAudioConfig(),
	}
}

// applyVADConfig merges a partial vad_config payload into the controller.
// Absent fields keep their current values.
func (s *Session) applyVADConfig(payload protocol.VADConfigPayload) {
	if err := payload.Validate(); err != nil {
		s.emitter.Send(protocol.NewErrorMessage(protocol.ErrCodeBadRequest, err.Error(), s.clientID))
		return
	}

	next := vad.Settings{Enabled: s.controller.Enabled()}
	if payload.Enabled != nil {
		next.Enabled = *payload.Enabled
	}
	if payload.SpeechThreshold != nil {
		next.SpeechThreshold = *payload.SpeechThreshold
	}
	if payload.SmoothingWindow != nil {
		next.SmoothingWindow = *payload.SmoothingWindow
	}
	s.controller.ApplySettings(next)

	log.Printf("[Session] %s: vad settings updated", s.clientID)
	s.emitter.Send(protocol.NewConfigUpdated(payload))
}

// Close tears the session down exactly once: cancel the shared context,
// stop the stages in pipeline order, flush the close frame and hand the
// session back to the registry.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.controller.Stop()
		s.coordinator.Stop()
		s.emitter.Stop()
		s.recorder.Close()
		s.sender.writeClose()
		s.conn.Close()
		_, span := trace.InstrumentSessionClosed(context.Background(), s.clientID)
		span.End()
		log.Printf("[Session] %s: closed", s.clientID)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
