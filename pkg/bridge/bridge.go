// Package bridge fans incremental language-model and synthesizer output
// into ordered outbound protocol messages for one turn.
//
// Reply tokens are forwarded the moment they arrive. Completed sentence
// spans are synthesized with bounded look-ahead concurrency; the resulting
// audio chunks are renumbered into a single strictly increasing per-turn
// sequence before transmission, so the client never depends on synthesizer
// completion order.
package bridge

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/engine"
	"github.com/samaira-ai/voicegate/pkg/protocol"
)

// Emitter is where outbound protocol messages go. The session's writer
// serializes emissions from concurrent goroutines.
type Emitter interface {
	Emit(msg *protocol.Message)
}

// Config holds bridge tuning parameters.
type Config struct {
	// Lookahead is how many synthesis spans may be in flight at once.
	Lookahead int

	// MaxSpanChars caps the length of one synthesis span.
	MaxSpanChars int
}

// Bridge streams one turn's reply: tokens out immediately, audio chunks
// in total order.
type Bridge struct {
	gen    engine.Generator
	synth  engine.Synthesizer
	emit   Emitter
	cfg    Config
	logger *slog.Logger
}

// New creates a Bridge.
func New(gen engine.Generator, synth engine.Synthesizer, emit Emitter, cfg Config) *Bridge {
	if cfg.Lookahead < 1 {
		cfg.Lookahead = 1
	}
	if cfg.MaxSpanChars <= 0 {
		cfg.MaxSpanChars = 200
	}
	return &Bridge{
		gen:    gen,
		synth:  synth,
		emit:   emit,
		cfg:    cfg,
		logger: log.With("component", "bridge"),
	}
}

// indexedSpan is one synthesis unit with its turn-relative order.
type indexedSpan struct {
	index int
	text  string
}

// spanResult is the synthesized audio for one span.
type spanResult struct {
	index  int
	chunks [][]byte
	format engine.AudioFormat
	err    error
}

// RunTurn streams the reply for one turn and returns the full reply text.
// onSpeaking fires once when the first audio chunk is emitted.
//
// On failure the partial reply already emitted stays with the client; the
// caller surfaces the error and returns the turn to idle.
func (b *Bridge) RunTurn(ctx context.Context, history []engine.Message, userText string, onSpeaking func()) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := b.gen.Generate(ctx, history, userText)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	spans := make(chan indexedSpan)
	results := make(chan spanResult, b.cfg.Lookahead)

	var firstErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	// Reader: forward each token immediately, segment into spans.
	var reply string
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(spans)

		seg := NewSegmenter(b.cfg.MaxSpanChars)
		var full strings.Builder
		index := 0

		send := func(text string) bool {
			select {
			case spans <- indexedSpan{index: index, text: text}:
				index++
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			token, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				fail(err)
				reply = full.String()
				return
			}

			full.WriteString(token)
			if msg, err := protocol.NewReplyTokenMessage(token); err == nil {
				b.emit.Emit(msg)
			}

			for _, span := range seg.Push(token) {
				if !send(span) {
					reply = full.String()
					return
				}
			}
		}

		if tail := seg.Flush(); tail != "" {
			send(tail)
		}
		reply = full.String()
	}()

	// Workers: synthesize spans with bounded look-ahead.
	var wg sync.WaitGroup
	for i := 0; i < b.cfg.Lookahead; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for span := range spans {
				res := b.synthesizeSpan(ctx, span)
				if res.err != nil {
					fail(res.err)
				}
				results <- res
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collector: restore total order and assign the wire sequence.
	pending := make(map[int]spanResult)
	next := 0
	var seq uint64
	spoke := false

	for res := range results {
		pending[res.index] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if r.err != nil || ctx.Err() != nil {
				continue
			}
			for _, chunk := range r.chunks {
				seq++
				msg, err := protocol.NewTTSChunkMessage(chunk, r.format.Encoding, r.format.SampleRate, seq)
				if err != nil {
					continue
				}
				b.emit.Emit(msg)
				if !spoke {
					spoke = true
					if onSpeaking != nil {
						onSpeaking()
					}
				}
			}
		}
	}

	<-readerDone

	if firstErr != nil {
		b.logger.Warn("turn stream failed", "error", firstErr)
		return reply, firstErr
	}

	b.logger.Debug("turn streamed", "reply_chars", len(reply), "chunks", seq)
	return reply, nil
}

// synthesizeSpan runs one span through the synthesizer and collects its
// chunks. Spans that prepare down to nothing produce an empty result so
// ordering is preserved.
func (b *Bridge) synthesizeSpan(ctx context.Context, span indexedSpan) spanResult {
	text := PrepareText(span.text)
	if text == "" {
		return spanResult{index: span.index}
	}

	stream, err := b.synth.Synthesize(ctx, text)
	if err != nil {
		return spanResult{index: span.index, err: err}
	}
	defer stream.Close()

	var chunks [][]byte
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return spanResult{index: span.index, err: err}
		}
		chunks = append(chunks, chunk)
	}

	return spanResult{index: span.index, chunks: chunks, format: stream.Format()}
}
