// Package session owns the lifecycle of client voice sessions: one turn
// controller per session, a single writer goroutine per connection, and a
// registry that caps concurrency and expires idle sessions.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/audio"
	"github.com/samaira-ai/voicegate/pkg/engine"
	"github.com/samaira-ai/voicegate/pkg/protocol"
	"github.com/samaira-ai/voicegate/pkg/turn"
)

// outboundDepth bounds queued outbound messages. Emitters block when the
// client cannot keep up, which backpressures synthesis instead of growing
// memory.
const outboundDepth = 1024

// Session is one client conversation. It survives reconnects: the turn
// controller and its history live as long as the session, while at most
// one WebSocket connection is attached at a time.
type Session struct {
	ID      string
	Created time.Time

	ctrl     *turn.Controller
	cancel   context.CancelFunc
	outbound chan *protocol.Message
	done     chan struct{}
	logger   *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	lastSeen time.Time
	closed   bool
}

func newSession(ctx context.Context, id string, cfg turn.Config, trans engine.Transcriber, gen engine.Generator, synth engine.Synthesizer) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:       id,
		Created:  now,
		lastSeen: now,
		outbound: make(chan *protocol.Message, outboundDepth),
		done:     make(chan struct{}),
		logger:   log.With("session", id),
	}

	ctrl, err := turn.NewController(cfg, trans, gen, synth, s)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go ctrl.Run(sctx)
	go s.writeLoop()

	return s, nil
}

// Emit queues an outbound message. The write loop owns the connection, so
// concurrent emitters never interleave writes.
func (s *Session) Emit(msg *protocol.Message) {
	select {
	case s.outbound <- msg:
	case <-s.done:
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.outbound:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				// Detached: the client missed this. Resuming mid-turn
				// replay is not supported.
				continue
			}

			data, err := msg.Bytes()
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write failed, detaching", "error", err)
				s.detach(conn)
			}
		}
	}
}

// Serve attaches the connection and pumps inbound messages until the peer
// disconnects or goes idle. It runs on the caller's goroutine.
func (s *Session) Serve(conn *websocket.Conn, idleTimeout time.Duration) {
	s.attach(conn)
	defer func() {
		s.detach(conn)
		// In-flight engine calls stop with the connection; the session
		// itself stays resumable until the registry expires it.
		s.ctrl.Stop()
	}()

	if msg, err := protocol.NewSessionMessage(s.ID); err == nil {
		s.Emit(msg)
	}

	for {
		if idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("connection closed", "error", err)
			return
		}
		s.touch()
		s.handleMessage(data)
	}
}

func (s *Session) handleMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.protocolViolation("malformed message: " + err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeStart:
		// Idempotent resume: just reconfirm the id.
		if m, err := protocol.NewSessionMessage(s.ID); err == nil {
			s.Emit(m)
		}

	case protocol.TypeAudioChunk:
		chunk, err := msg.GetAudioChunkData()
		if err != nil {
			s.protocolViolation("bad audio_chunk payload")
			return
		}
		pcm, err := chunk.DecodeAudio()
		if err != nil {
			s.protocolViolation("audio_chunk data is not valid base64")
			return
		}
		s.ctrl.Frame(audio.BytesToSamples(pcm))

	case protocol.TypeStop:
		s.ctrl.Stop()

	default:
		s.protocolViolation("unexpected message type " + string(msg.Type))
	}
}

// protocolViolation surfaces a client error; the session continues.
func (s *Session) protocolViolation(detail string) {
	s.logger.Warn("protocol violation", "detail", detail)
	if msg, err := protocol.NewErrorMessage(protocol.CodeProtocolViolation, detail, false); err == nil {
		s.Emit(msg)
	}
}

func (s *Session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.lastSeen = time.Now()
	s.mu.Unlock()

	if old != nil && old != conn {
		old.Close()
	}
}

// detach clears the connection if it is still the attached one.
func (s *Session) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen is the time of the last inbound message.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Attached reports whether a connection is currently serving the session.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// State is the turn controller's current lifecycle state.
func (s *Session) State() turn.State {
	return s.ctrl.State()
}

// Close cancels in-flight engine calls and releases the session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	if conn != nil {
		conn.Close()
	}
}
