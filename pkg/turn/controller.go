// Package turn drives the per-session conversation state machine:
// Idle → Capturing → Transcribing → Generating → Speaking → Idle.
//
// The controller consumes typed events from a single queue, so all state
// lives on one goroutine. Engine calls run in worker goroutines and report
// back through the same queue. Speech arriving while a turn is in flight is
// held in a bounded queue and processed as soon as the turn returns to Idle.
package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/bridge"
	"github.com/samaira-ai/voicegate/pkg/engine"
	"github.com/samaira-ai/voicegate/pkg/protocol"
	"github.com/samaira-ai/voicegate/pkg/vad"
)

// State is the controller's position in the turn lifecycle.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateTranscribing
	StateGenerating
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Config holds turn controller tuning parameters.
type Config struct {
	// FrameDuration is the duration of one audio frame.
	FrameDuration time.Duration

	// VADAggressiveness selects the speech detection threshold (0-3).
	VADAggressiveness vad.Aggressiveness

	// SilenceWindow is the trailing silence that ends an utterance.
	SilenceWindow time.Duration

	// MaxUtterance force-submits a capture that never goes silent.
	MaxUtterance time.Duration

	// MaxTurnDuration force-terminates a turn that never completes.
	MaxTurnDuration time.Duration

	// HeldFrameCap bounds frames held while a turn is in flight.
	HeldFrameCap int

	// HistoryWindow is how many conversation messages generation sees.
	HistoryWindow int

	// Language is the transcription language hint.
	Language string

	// SpanLookahead and SpanMaxChars tune the streaming bridge.
	SpanLookahead int
	SpanMaxChars  int
}

func (c *Config) applyDefaults() {
	if c.FrameDuration <= 0 {
		c.FrameDuration = 30 * time.Millisecond
	}
	if c.SilenceWindow <= 0 {
		c.SilenceWindow = 600 * time.Millisecond
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = 20 * time.Second
	}
	if c.MaxTurnDuration <= 0 {
		c.MaxTurnDuration = 2 * time.Minute
	}
	if c.HeldFrameCap <= 0 {
		c.HeldFrameCap = 1024
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.Language == "" {
		c.Language = "hi"
	}
}

type eventKind int

const (
	evFrame eventKind = iota
	evStop
	evTranscript
	evSpeaking
	evTurnDone
	evTimeout
)

type event struct {
	kind   eventKind
	frame  []int16
	turnID uint64
	text   string
	reply  string
	err    error
}

// flight tracks the one turn currently being processed.
type flight struct {
	id        uint64
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	userText  string
	announced bool
	stopped   bool
	timedOut  bool
}

// Controller owns one session's turn-taking.
type Controller struct {
	cfg    Config
	trans  engine.Transcriber
	bridge *bridge.Bridge
	emit   bridge.Emitter
	det    *vad.Detector
	logger *slog.Logger

	events chan event
	done   chan struct{}
	state  atomic.Int32

	// Loop-owned state below; only the Run goroutine touches it.
	runCtx         context.Context
	speaking       bool
	capturing      bool
	buf            [][]int16
	trailing       int
	pendingUtt     [][][]int16
	flight         *flight
	turnSeq        uint64
	capWarned      bool
	history        []engine.Message
	maxUtterFrames int
}

// NewController wires a controller around the given engines. Outbound
// messages go to emit; the caller must serialize them onto the transport.
func NewController(cfg Config, trans engine.Transcriber, gen engine.Generator, synth engine.Synthesizer, emit bridge.Emitter) (*Controller, error) {
	cfg.applyDefaults()

	det, err := vad.New(cfg.VADAggressiveness, cfg.FrameDuration, cfg.SilenceWindow)
	if err != nil {
		return nil, err
	}

	br := bridge.New(retryGenerator{inner: gen}, synth, emit, bridge.Config{
		Lookahead:    cfg.SpanLookahead,
		MaxSpanChars: cfg.SpanMaxChars,
	})

	return &Controller{
		cfg:            cfg,
		trans:          trans,
		bridge:         br,
		emit:           emit,
		det:            det,
		logger:         log.With("component", "turn"),
		events:         make(chan event, 256),
		done:           make(chan struct{}),
		maxUtterFrames: int(cfg.MaxUtterance / cfg.FrameDuration),
	}, nil
}

// State reports the current lifecycle state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Frame feeds one decoded audio frame into the state machine.
func (c *Controller) Frame(frame []int16) {
	c.post(event{kind: evFrame, frame: frame})
}

// Stop cancels the current turn without an error. Held speech is kept.
func (c *Controller) Stop() {
	c.post(event{kind: evStop})
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Run consumes events until ctx is cancelled. It must be called exactly
// once; Frame and Stop are safe from other goroutines while it runs.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	c.runCtx = ctx

	for {
		select {
		case <-ctx.Done():
			if c.flight != nil {
				c.flight.timer.Stop()
				c.flight.cancel()
				c.flight = nil
			}
			return
		case ev := <-c.events:
			switch ev.kind {
			case evFrame:
				c.handleFrame(ev.frame)
			case evStop:
				c.handleStop()
			case evTranscript:
				c.handleTranscript(ev)
			case evSpeaking:
				c.handleSpeaking(ev)
			case evTurnDone:
				c.handleTurnDone(ev)
			case evTimeout:
				c.handleTimeout(ev)
			}
		}
	}
}

func (c *Controller) handleFrame(frame []int16) {
	res := c.det.Process(frame)

	if res.Speech != c.speaking {
		c.speaking = res.Speech
		state := protocol.VADSilence
		if res.Speech {
			state = protocol.VADSpeech
		}
		if msg, err := protocol.NewVADStateMessage(state); err == nil {
			c.emit.Emit(msg)
		}
	}

	if !c.capturing && res.Speech {
		c.capturing = true
		if c.flight == nil {
			c.setState(StateCapturing)
		}
	}
	if !c.capturing {
		return
	}

	c.buf = append(c.buf, frame)
	if res.Speech {
		c.trailing = 0
	} else {
		c.trailing++
	}
	if c.flight != nil {
		c.enforceHeldCap()
	}

	flush := res.UtteranceEnd
	if len(c.buf) >= c.maxUtterFrames {
		// Capture that never goes silent is submitted as-is. This is a
		// policy flush, not a failure.
		c.logger.Info("utterance cap reached, force-submitting", "frames", len(c.buf))
		c.det.Reset()
		flush = true
	}
	if !flush {
		return
	}

	utt := c.buf
	if res.UtteranceEnd && c.trailing > 0 && c.trailing < len(utt) {
		// The silence window that closed the utterance carries no speech.
		utt = utt[:len(utt)-c.trailing]
	}
	c.buf = nil
	c.trailing = 0
	c.capturing = false

	if c.flight != nil {
		c.pendingUtt = append(c.pendingUtt, utt)
		return
	}
	c.startTurn(utt)
}

// enforceHeldCap bounds the frames held while a turn is in flight,
// dropping the oldest first. One error is surfaced per overflow episode.
func (c *Controller) enforceHeldCap() {
	total := len(c.buf)
	for _, u := range c.pendingUtt {
		total += len(u)
	}
	if total <= c.cfg.HeldFrameCap {
		return
	}

	dropped := 0
	for total > c.cfg.HeldFrameCap {
		switch {
		case len(c.pendingUtt) > 0:
			u := c.pendingUtt[0][1:]
			if len(u) == 0 {
				c.pendingUtt = c.pendingUtt[1:]
			} else {
				c.pendingUtt[0] = u
			}
		case len(c.buf) > 0:
			c.buf = c.buf[1:]
		default:
			return
		}
		total--
		dropped++
	}

	if !c.capWarned {
		c.capWarned = true
		c.logger.Warn("held frame queue overflow", "dropped", dropped, "cap", c.cfg.HeldFrameCap)
		if msg, err := protocol.NewErrorMessage(protocol.CodeCapacityExceeded,
			"held audio exceeded capacity; oldest frames dropped", false); err == nil {
			c.emit.Emit(msg)
		}
	}
}

func (c *Controller) handleStop() {
	if c.flight != nil {
		c.flight.stopped = true
		c.flight.cancel()
		return
	}
	if c.capturing || len(c.buf) > 0 {
		c.buf = nil
		c.trailing = 0
		c.capturing = false
		c.det.Reset()
		c.setState(StateIdle)
	}
}

func (c *Controller) startTurn(utt [][]int16) {
	c.turnSeq++
	id := c.turnSeq

	tctx, cancel := context.WithCancel(c.runCtx)
	fl := &flight{id: id, ctx: tctx, cancel: cancel}
	fl.timer = time.AfterFunc(c.cfg.MaxTurnDuration, func() {
		c.post(event{kind: evTimeout, turnID: id})
	})
	c.flight = fl
	c.setState(StateTranscribing)
	c.logger.Debug("turn started", "turn", id, "frames", len(utt))

	go func() {
		text, err := c.transcribe(tctx, utt)
		c.post(event{kind: evTranscript, turnID: id, text: text, err: err})
	}()
}

func (c *Controller) transcribe(ctx context.Context, frames [][]int16) (string, error) {
	var text string
	op := func() error {
		t, err := c.trans.Transcribe(ctx, frames, c.cfg.Language)
		if err != nil {
			if engine.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		text = t
		return nil
	}
	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Controller) handleTranscript(ev event) {
	fl := c.flight
	if fl == nil || fl.id != ev.turnID {
		return
	}
	if ev.err != nil {
		c.failTurn(ev.err)
		return
	}

	text := strings.TrimSpace(ev.text)
	if text == "" {
		// Whitespace-only transcript: nothing to answer, nothing to emit.
		c.logger.Debug("empty transcript, turn discarded", "turn", fl.id)
		c.finish()
		return
	}

	fl.userText = text
	fl.announced = true
	if msg, err := protocol.NewSTTFinalMessage(text); err == nil {
		c.emit.Emit(msg)
	}
	c.setState(StateGenerating)

	history := append([]engine.Message(nil), c.history...)
	id := fl.id
	tctx := fl.ctx
	go func() {
		reply, err := c.bridge.RunTurn(tctx, history, text, func() {
			c.post(event{kind: evSpeaking, turnID: id})
		})
		c.post(event{kind: evTurnDone, turnID: id, reply: reply, err: err})
	}()
}

func (c *Controller) handleSpeaking(ev event) {
	if c.flight != nil && c.flight.id == ev.turnID {
		c.setState(StateSpeaking)
	}
}

func (c *Controller) handleTurnDone(ev event) {
	fl := c.flight
	if fl == nil || fl.id != ev.turnID {
		return
	}
	if ev.err != nil {
		c.failTurn(ev.err)
		return
	}

	c.history = append(c.history,
		engine.Message{Role: engine.RoleUser, Content: fl.userText},
		engine.Message{Role: engine.RoleAssistant, Content: ev.reply},
	)
	if n := len(c.history) - c.cfg.HistoryWindow; n > 0 {
		c.history = c.history[n:]
	}

	if msg, err := protocol.NewTurnDoneMessage(); err == nil {
		c.emit.Emit(msg)
	}
	c.logger.Debug("turn complete", "turn", fl.id, "reply_chars", len(ev.reply))
	c.finish()
}

func (c *Controller) handleTimeout(ev event) {
	if c.flight != nil && c.flight.id == ev.turnID {
		c.flight.timedOut = true
		c.flight.cancel()
	}
}

// failTurn surfaces a turn failure and returns to Idle. Stop is not a
// failure: the client just gets its turn_done if the turn was announced.
func (c *Controller) failTurn(err error) {
	fl := c.flight
	switch {
	case fl.stopped:
		if fl.announced {
			if msg, merr := protocol.NewTurnDoneMessage(); merr == nil {
				c.emit.Emit(msg)
			}
		}
		c.logger.Debug("turn stopped", "turn", fl.id)
	case fl.timedOut:
		c.logger.Warn("turn deadline exceeded", "turn", fl.id)
		if msg, merr := protocol.NewErrorMessage(protocol.CodeTurnTimeout,
			"turn exceeded maximum duration", true); merr == nil {
			c.emit.Emit(msg)
		}
	case engine.IsTransient(err):
		c.logger.Warn("turn failed", "turn", fl.id, "error", err)
		if msg, merr := protocol.NewErrorMessage(protocol.CodeEngineTransient, err.Error(), true); merr == nil {
			c.emit.Emit(msg)
		}
	default:
		c.logger.Error("turn failed", "turn", fl.id, "error", err)
		if msg, merr := protocol.NewErrorMessage(protocol.CodeEngineFatal, err.Error(), false); merr == nil {
			c.emit.Emit(msg)
		}
	}
	c.finish()
}

// finish releases the in-flight turn and starts the next held utterance.
func (c *Controller) finish() {
	fl := c.flight
	fl.timer.Stop()
	fl.cancel()
	c.flight = nil
	c.capWarned = false
	c.setState(StateIdle)

	if len(c.pendingUtt) > 0 {
		utt := c.pendingUtt[0]
		c.pendingUtt = c.pendingUtt[1:]
		c.startTurn(utt)
	}
}
