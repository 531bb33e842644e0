package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaira-ai/voicegate/pkg/engine"
	"github.com/samaira-ai/voicegate/pkg/protocol"
)

// captureEmitter collects emitted messages for assertions.
type captureEmitter struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (c *captureEmitter) Emit(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureEmitter) byType(t protocol.MessageType) []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.Message
	for _, m := range c.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func TestRunTurn_TokensForwardedInOrder(t *testing.T) {
	tokens := []string{"SIP ", "ek ", "accha ", "option ", "hai"}

	gen := &engine.MockGenerator{
		GenerateFunc: func(ctx context.Context, history []engine.Message, userText string) (engine.TokenStream, error) {
			return engine.Tokens(tokens...), nil
		},
	}
	synth := &engine.MockSynthesizer{}
	emit := &captureEmitter{}

	b := New(gen, synth, emit, Config{Lookahead: 2, MaxSpanChars: 200})

	reply, err := b.RunTurn(context.Background(), nil, "sip kya hai", nil)
	require.NoError(t, err)
	assert.Equal(t, "SIP ek accha option hai", reply)

	replyMsgs := emit.byType(protocol.TypeReplyToken)
	require.Len(t, replyMsgs, 5)

	var got string
	for _, m := range replyMsgs {
		data, err := m.GetReplyTokenData()
		require.NoError(t, err)
		got += data.Text
	}
	assert.Equal(t, "SIP ek accha option hai", got)
}

func TestRunTurn_ChunkSequenceGaplessDespiteOutOfOrderSynthesis(t *testing.T) {
	gen := &engine.MockGenerator{
		GenerateFunc: func(ctx context.Context, history []engine.Message, userText string) (engine.TokenStream, error) {
			return engine.Tokens("One. ", "Two. ", "Three."), nil
		},
	}

	// The first span synthesizes slowest, so with look-ahead 2 the second
	// span completes first. The wire sequence must still be total order.
	synth := &engine.MockSynthesizer{
		SynthesizeFunc: func(ctx context.Context, span string) (engine.ChunkStream, error) {
			if span == "One." {
				time.Sleep(60 * time.Millisecond)
			}
			return engine.PCMChunks(16000, []byte(span+"-a"), []byte(span+"-b")), nil
		},
	}
	emit := &captureEmitter{}

	b := New(gen, synth, emit, Config{Lookahead: 2, MaxSpanChars: 200})

	_, err := b.RunTurn(context.Background(), nil, "count", nil)
	require.NoError(t, err)

	chunkMsgs := emit.byType(protocol.TypeTTSChunk)
	require.Len(t, chunkMsgs, 6)

	wantPayloads := []string{"One.-a", "One.-b", "Two.-a", "Two.-b", "Three.-a", "Three.-b"}
	for i, m := range chunkMsgs {
		data, err := m.GetTTSChunkData()
		require.NoError(t, err)

		assert.Equal(t, uint64(i+1), data.Seq, "sequence must be strictly increasing with no gaps")

		audio, err := data.DecodeAudio()
		require.NoError(t, err)
		assert.Equal(t, wantPayloads[i], string(audio), "chunks must arrive in span order")
	}
}

func TestRunTurn_OnSpeakingFiresOnce(t *testing.T) {
	gen := &engine.MockGenerator{
		GenerateFunc: func(ctx context.Context, history []engine.Message, userText string) (engine.TokenStream, error) {
			return engine.Tokens("Ek. ", "Do."), nil
		},
	}
	synth := &engine.MockSynthesizer{}
	emit := &captureEmitter{}

	b := New(gen, synth, emit, Config{Lookahead: 2})

	calls := 0
	_, err := b.RunTurn(context.Background(), nil, "gino", func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunTurn_GeneratorError(t *testing.T) {
	wantErr := engine.WrapFatal("test", errors.New("model unavailable"))
	gen := &engine.MockGenerator{
		GenerateFunc: func(ctx context.Context, history []engine.Message, userText string) (engine.TokenStream, error) {
			return nil, wantErr
		},
	}
	emit := &captureEmitter{}

	b := New(gen, &engine.MockSynthesizer{}, emit, Config{})

	_, err := b.RunTurn(context.Background(), nil, "hello", nil)
	require.Error(t, err)
	assert.False(t, engine.IsTransient(err))
}

func TestRunTurn_SynthesizerErrorAborts(t *testing.T) {
	gen := &engine.MockGenerator{
		GenerateFunc: func(ctx context.Context, history []engine.Message, userText string) (engine.TokenStream, error) {
			return engine.Tokens("Pehla vakya. ", "Doosra vakya."), nil
		},
	}
	synth := &engine.MockSynthesizer{
		SynthesizeFunc: func(ctx context.Context, span string) (engine.ChunkStream, error) {
			return nil, engine.WrapTransient("test", errors.New("tts down"))
		},
	}
	emit := &captureEmitter{}

	b := New(gen, synth, emit, Config{Lookahead: 2})

	_, err := b.RunTurn(context.Background(), nil, "bolo", nil)
	require.Error(t, err)

	// Tokens already emitted are not retracted.
	assert.NotEmpty(t, emit.byType(protocol.TypeReplyToken))
	assert.Empty(t, emit.byType(protocol.TypeTTSChunk))
}

func TestRunTurn_HistoryPassedThrough(t *testing.T) {
	var gotHistory []engine.Message
	gen := &engine.MockGenerator{
		GenerateFunc: func(ctx context.Context, history []engine.Message, userText string) (engine.TokenStream, error) {
			gotHistory = history
			return engine.Tokens("ok"), nil
		},
	}

	b := New(gen, &engine.MockSynthesizer{}, &captureEmitter{}, Config{})

	history := []engine.Message{
		{Role: engine.RoleUser, Content: "sip kya hai"},
		{Role: engine.RoleAssistant, Content: "SIP ek accha option hai"},
	}
	_, err := b.RunTurn(context.Background(), history, "aur batao", nil)
	require.NoError(t, err)
	assert.Equal(t, history, gotHistory)
}
