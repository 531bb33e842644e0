package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/engine"
	"github.com/samaira-ai/voicegate/pkg/protocol"
	"github.com/samaira-ai/voicegate/pkg/turn"
)

// ErrCapacity is returned when the registry holds the maximum number of
// live sessions.
var ErrCapacity = errors.New("session: registry at capacity")

// Config holds registry limits plus the per-session turn configuration.
type Config struct {
	Turn turn.Config

	// MaxSessions caps concurrent sessions; new connections beyond it are
	// refused with a session_limit error.
	MaxSessions int

	// SessionTTL expires detached sessions that stay idle.
	SessionTTL time.Duration

	// IdleTimeout closes a connection that sends nothing.
	IdleTimeout time.Duration

	// SweepInterval is how often expired sessions are collected.
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 64
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Registry tracks live sessions and shares one set of engines across them.
type Registry struct {
	cfg    Config
	trans  engine.Transcriber
	gen    engine.Generator
	synth  engine.Synthesizer
	logger *slog.Logger

	ctx       context.Context
	cancelAll context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry backed by the given engines.
func NewRegistry(cfg Config, trans engine.Transcriber, gen engine.Generator, synth engine.Synthesizer) *Registry {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:       cfg,
		trans:     trans,
		gen:       gen,
		synth:     synth,
		logger:    log.With("component", "registry"),
		ctx:       ctx,
		cancelAll: cancel,
		sessions:  make(map[string]*Session),
	}
}

// GetOrCreate returns the session with the given id, creating it when the
// id is empty or unknown. Reconnecting clients keep their conversation.
func (r *Registry) GetOrCreate(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if s, ok := r.sessions[id]; ok {
			s.touch()
			return s, nil
		}
	}
	if len(r.sessions) >= r.cfg.MaxSessions {
		return nil, ErrCapacity
	}
	if id == "" {
		id = uuid.NewString()
	}

	s, err := newSession(r.ctx, id, r.cfg.Turn, r.trans, r.gen, r.synth)
	if err != nil {
		return nil, err
	}
	r.sessions[id] = s
	r.logger.Info("session created", "session", id, "total", len(r.sessions))
	return s, nil
}

// Get returns a session by id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Handle serves one WebSocket connection. The first message must be a
// start; anything else is answered with a protocol_violation until one
// arrives.
func (r *Registry) Handle(conn *websocket.Conn) {
	var sess *Session
	for sess == nil {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeStart {
			writeDirect(conn, protocol.CodeProtocolViolation, "expected start message", false)
			continue
		}
		start, err := msg.GetStartData()
		if err != nil {
			writeDirect(conn, protocol.CodeProtocolViolation, "bad start payload", false)
			continue
		}

		s, err := r.GetOrCreate(start.SessionID)
		if err != nil {
			if errors.Is(err, ErrCapacity) {
				r.logger.Warn("connection refused, at capacity", "max", r.cfg.MaxSessions)
				writeDirect(conn, protocol.CodeSessionLimit, "server at session capacity", true)
			}
			conn.Close()
			return
		}
		sess = s
	}

	sess.Serve(conn, r.cfg.IdleTimeout)
}

// writeDirect writes an error before a session (and its write loop) exists.
func writeDirect(conn *websocket.Conn, code, detail string, retryable bool) {
	msg, err := protocol.NewErrorMessage(code, detail, retryable)
	if err != nil {
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// Run sweeps expired sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep closes detached sessions idle past the TTL and returns how many
// were removed. Attached sessions are left to their idle read deadline.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.SessionTTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if !s.Attached() && s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		r.logger.Info("session expired", "session", s.ID)
	}
	return len(expired)
}

// Info describes one live session for the stats API.
type Info struct {
	ID       string    `json:"id"`
	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"last_seen"`
	State    string    `json:"state"`
	Attached bool      `json:"attached"`
}

// Infos returns a snapshot of all live sessions.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{
			ID:       s.ID,
			Created:  s.Created,
			LastSeen: s.LastSeen(),
			State:    s.State().String(),
			Attached: s.Attached(),
		})
	}
	return infos
}

// Close shuts down every session and cancels their engine calls.
func (r *Registry) Close() {
	r.cancelAll()

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
