package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samaira-ai/voicegate/internal/httpc"
	"github.com/samaira-ai/voicegate/internal/log"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ModelFlashV2_5 is the fastest multilingual ElevenLabs model (~150ms latency),
// the right default for Hinglish synthesis.
const ModelFlashV2_5 = "eleven_flash_v2_5"

// ElevenLabs implements Synthesizer against the ElevenLabs streaming TTS API.
// Output is 16kHz mono PCM16.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates an ElevenLabs synthesizer.
func NewElevenLabs(apiKey, voiceID string) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, WrapFatal(providerElevenLabs, errors.New("API key required"))
	}
	if voiceID == "" {
		return nil, WrapFatal(providerElevenLabs, errors.New("voice ID required"))
	}
	return &ElevenLabs{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: ModelFlashV2_5,
		client:  httpc.NewClient(httpc.DefaultTimeout),
		logger:  log.With("component", "engine.elevenlabs"),
		baseURL: elevenLabsBaseURL,
	}, nil
}

// Synthesize streams PCM audio for one span.
func (e *ElevenLabs) Synthesize(ctx context.Context, span string) (ChunkStream, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=pcm_16000", e.baseURL, e.voiceID)

	payload := map[string]any{
		"text":     span,
		"model_id": e.modelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapFatal(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapFatal(providerElevenLabs, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, WrapTransient(providerElevenLabs, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, e.parseError(resp)
	}

	e.logger.Debug("synthesis stream opened",
		"chars", len(span),
		"latency_ms", time.Since(start).Milliseconds(),
		"model", e.modelID,
	)

	return &elevenLabsStream{body: resp.Body}, nil
}

// parseError turns a non-200 response into a classified engine error.
func (e *ElevenLabs) parseError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	if classifyStatus(resp.StatusCode) == KindFatal {
		return WrapFatal(providerElevenLabs, err)
	}
	return WrapTransient(providerElevenLabs, err)
}

// elevenLabsStream reads streamed PCM from the response body.
type elevenLabsStream struct {
	body io.ReadCloser
}

func (s *elevenLabsStream) Recv() ([]byte, error) {
	buf := make([]byte, speechChunkSize)
	n, err := io.ReadFull(s.body, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return nil, io.EOF
	}
	return nil, WrapTransient(providerElevenLabs, err)
}

func (s *elevenLabsStream) Format() AudioFormat {
	return AudioFormat{Encoding: "pcm16", SampleRate: 16000}
}

func (s *elevenLabsStream) Close() error {
	return s.body.Close()
}
