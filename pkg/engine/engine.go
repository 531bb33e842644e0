// Package engine defines the interfaces for the black-box speech and language
// services the pipeline consumes: transcription, generation, and synthesis.
//
// All calls take a context and are cancellable; streams end with io.EOF.
// Implementations classify failures as transient (retryable) or fatal via
// the error types in this package.
package engine

import "context"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn in the conversation context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcriber converts a completed utterance into text.
// The frames are 16kHz mono PCM16 in capture order.
type Transcriber interface {
	Transcribe(ctx context.Context, frames [][]int16, language string) (string, error)
}

// TokenStream yields incremental reply tokens. Recv returns io.EOF when the
// reply is complete. Close releases the underlying stream; it is safe to
// call after Recv returned io.EOF.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Generator streams a reply for the given conversation context and new
// user text. The stream is cancelled by cancelling ctx.
type Generator interface {
	Generate(ctx context.Context, history []Message, userText string) (TokenStream, error)
}

// AudioFormat describes the encoding of synthesized audio chunks.
type AudioFormat struct {
	Encoding   string // "pcm16"
	SampleRate int    // Hz
}

// ChunkStream yields playable audio chunks for one synthesis span.
// Recv returns io.EOF when the span is fully synthesized.
type ChunkStream interface {
	Recv() ([]byte, error)
	Format() AudioFormat
	Close() error
}

// Synthesizer converts one text span into a stream of audio chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, span string) (ChunkStream, error)
}
