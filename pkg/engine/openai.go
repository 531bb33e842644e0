package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/audio"
)

const providerOpenAI = "openai"

// speechChunkSize is the read granularity for streamed TTS audio.
const speechChunkSize = 4096

// OpenAI implements Transcriber, Generator, and Synthesizer against the
// OpenAI API: Whisper for transcription, chat completions for generation,
// and the speech endpoint for synthesis.
type OpenAI struct {
	client *openai.Client
	logger *slog.Logger

	// ChatModel is the chat completion model (default gpt-4o-mini).
	ChatModel string

	// Voice is the TTS voice (default alloy).
	Voice string

	// SystemPrompt is prepended to every generation, if set.
	SystemPrompt string
}

// NewOpenAI creates an OpenAI engine with the given API key.
func NewOpenAI(apiKey string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, WrapFatal(providerOpenAI, errors.New("API key required"))
	}
	return &OpenAI{
		client:    openai.NewClient(apiKey),
		logger:    log.With("component", "engine.openai"),
		ChatModel: openai.GPT4oMini,
		Voice:     string(openai.VoiceAlloy),
	}, nil
}

// Transcribe sends the utterance as a WAV file to the Whisper endpoint.
func (o *OpenAI) Transcribe(ctx context.Context, frames [][]int16, language string) (string, error) {
	start := time.Now()

	wav := encodeWAV(frames, audio.SampleRate)
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Language: language,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	o.logger.Debug("transcribed utterance",
		"frames", len(frames),
		"chars", len(resp.Text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp.Text, nil
}

// Generate opens a chat completion stream for the conversation.
func (o *OpenAI) Generate(ctx context.Context, history []Message, userText string) (TokenStream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if o.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.SystemPrompt,
		})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.ChatModel,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	return &openAITokenStream{stream: stream}, nil
}

// Synthesize streams PCM audio for one span from the speech endpoint.
// The PCM response format is 24kHz mono 16-bit.
func (o *OpenAI) Synthesize(ctx context.Context, span string) (ChunkStream, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          span,
		Voice:          openai.SpeechVoice(o.Voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	return &readerChunkStream{
		body:   resp,
		format: AudioFormat{Encoding: "pcm16", SampleRate: 24000},
	}, nil
}

// openAITokenStream adapts the chat completion stream to TokenStream.
type openAITokenStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAITokenStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return delta, nil
	}
}

func (s *openAITokenStream) Close() error {
	s.stream.Close()
	return nil
}

// readerChunkStream reads fixed-size audio chunks from a response body.
type readerChunkStream struct {
	body   io.ReadCloser
	format AudioFormat
}

func (s *readerChunkStream) Recv() ([]byte, error) {
	buf := make([]byte, speechChunkSize)
	n, err := io.ReadFull(s.body, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return nil, io.EOF
	}
	return nil, WrapTransient(providerOpenAI, err)
}

func (s *readerChunkStream) Format() AudioFormat {
	return s.format
}

func (s *readerChunkStream) Close() error {
	return s.body.Close()
}

// classifyOpenAIError maps API errors to transient or fatal engine errors.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if classifyStatus(apiErr.HTTPStatusCode) == KindFatal {
			return WrapFatal(providerOpenAI, err)
		}
		return WrapTransient(providerOpenAI, err)
	}
	// Network-level failures are worth a retry.
	return WrapTransient(providerOpenAI, err)
}
