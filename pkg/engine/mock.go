package engine

import (
	"context"
	"io"
	"sync"
	"time"
)

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Frames int
	Time   time.Time
}

// callRecorder tracks invocations for the mock engines.
type callRecorder struct {
	mu    sync.Mutex
	calls []MockCall
}

func (r *callRecorder) record(method, text string, frames int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, MockCall{
		Method: method,
		Text:   text,
		Frames: frames,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (r *callRecorder) Calls() []MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]MockCall, len(r.calls))
	copy(result, r.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (r *callRecorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, c := range r.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (r *callRecorder) LastCall() *MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	call := r.calls[len(r.calls)-1]
	return &call
}

// MockTranscriber implements Transcriber for testing.
type MockTranscriber struct {
	callRecorder

	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns a fixed placeholder transcript.
	TranscribeFunc func(ctx context.Context, frames [][]int16, language string) (string, error)
}

// Transcribe calls TranscribeFunc and records the call.
func (m *MockTranscriber) Transcribe(ctx context.Context, frames [][]int16, language string) (string, error) {
	m.record("Transcribe", language, len(frames))
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, frames, language)
	}
	return "mock transcript", nil
}

// MockGenerator implements Generator for testing.
type MockGenerator struct {
	callRecorder

	// GenerateFunc is called when Generate is invoked.
	// If nil, returns a single-token stream echoing the user text.
	GenerateFunc func(ctx context.Context, history []Message, userText string) (TokenStream, error)
}

// Generate calls GenerateFunc and records the call.
func (m *MockGenerator) Generate(ctx context.Context, history []Message, userText string) (TokenStream, error) {
	m.record("Generate", userText, len(history))
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, history, userText)
	}
	return Tokens(userText), nil
}

// MockSynthesizer implements Synthesizer for testing.
type MockSynthesizer struct {
	callRecorder

	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns one silent chunk per span (~20ms per character).
	SynthesizeFunc func(ctx context.Context, span string) (ChunkStream, error)
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *MockSynthesizer) Synthesize(ctx context.Context, span string) (ChunkStream, error) {
	m.record("Synthesize", span, 0)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, span)
	}
	silence := make([]byte, len(span)*640) // 20ms per char at 16kHz PCM16
	return PCMChunks(16000, silence), nil
}

// Tokens returns a TokenStream that yields the given tokens in order.
func Tokens(tokens ...string) TokenStream {
	return &sliceTokenStream{tokens: tokens}
}

type sliceTokenStream struct {
	mu     sync.Mutex
	tokens []string
	pos    int
}

func (s *sliceTokenStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, nil
}

func (s *sliceTokenStream) Close() error {
	return nil
}

// PCMChunks returns a ChunkStream that yields the given chunks in order.
func PCMChunks(sampleRate int, chunks ...[]byte) ChunkStream {
	return &sliceChunkStream{
		chunks: chunks,
		format: AudioFormat{Encoding: "pcm16", SampleRate: sampleRate},
	}
}

type sliceChunkStream struct {
	mu     sync.Mutex
	chunks [][]byte
	format AudioFormat
	pos    int
}

func (s *sliceChunkStream) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceChunkStream) Format() AudioFormat {
	return s.format
}

func (s *sliceChunkStream) Close() error {
	return nil
}

// Compile-time interface checks.
var (
	_ Transcriber = (*MockTranscriber)(nil)
	_ Generator   = (*MockGenerator)(nil)
	_ Synthesizer = (*MockSynthesizer)(nil)
	_ Transcriber = (*OpenAI)(nil)
	_ Generator   = (*OpenAI)(nil)
	_ Synthesizer = (*OpenAI)(nil)
	_ Synthesizer = (*ElevenLabs)(nil)
)
