package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/audio"
	"github.com/samaira-ai/voicegate/pkg/protocol"
)

// Config holds client connection settings.
type Config struct {
	// URL is the gateway voice endpoint, e.g. ws://host:8080/ws/voice.
	URL string

	// SessionID resumes an existing session when set.
	SessionID string

	// SourceRate is the microphone sample rate fed to StreamBlock.
	SourceRate int

	// FrameDuration is the frame size sent on the wire.
	FrameDuration time.Duration
}

// Events are the callbacks fired from the read loop. Nil callbacks are
// skipped. OnAudio delivers chunks in strict sequence order; OnTurnDone
// fires only after every chunk of the turn has been delivered.
type Events struct {
	OnSession    func(id string)
	OnVADState   func(state string)
	OnTranscript func(text string)
	OnToken      func(text string)
	OnAudio      func(chunk Chunk)
	OnTurnDone   func()
	OnError      func(code, message string, retryable bool)
}

// Client is one duplex voice connection.
type Client struct {
	conn   *websocket.Conn
	framer *audio.Framer
	logger *slog.Logger

	writeMu   sync.Mutex
	sessionID string
}

// Dial connects, sends start, and waits for the session confirmation.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SourceRate <= 0 {
		cfg.SourceRate = audio.SampleRate
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 30 * time.Millisecond
	}

	framer, err := audio.NewFramer(cfg.SourceRate, cfg.FrameDuration)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		conn:   conn,
		framer: framer,
		logger: log.With("component", "client"),
	}

	msg, err := protocol.NewStartMessage(cfg.SessionID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.write(msg); err != nil {
		conn.Close()
		return nil, err
	}

	// The server confirms (or refuses) before anything else.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	reply, err := c.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch reply.Type {
	case protocol.TypeSession:
		data, err := reply.GetSessionData()
		if err != nil {
			conn.Close()
			return nil, err
		}
		c.sessionID = data.SessionID
	case protocol.TypeError:
		data, err := reply.GetErrorData()
		conn.Close()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("client: refused: %s (%s)", data.Message, data.Code)
	default:
		conn.Close()
		return nil, fmt.Errorf("client: unexpected %s before session confirmation", reply.Type)
	}
	conn.SetReadDeadline(time.Time{})

	c.logger.Info("connected", "session", c.sessionID)
	return c, nil
}

// SessionID is the server-assigned session id.
func (c *Client) SessionID() string {
	return c.sessionID
}

// StreamBlock resamples and frames one microphone block, sending each
// completed frame as an audio_chunk.
func (c *Client) StreamBlock(block []float64) error {
	for _, frame := range c.framer.Push(block) {
		if err := c.SendFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// SendFrame sends one already-framed chunk of 16kHz PCM16.
func (c *Client) SendFrame(frame []int16) error {
	msg, err := protocol.NewAudioChunkMessage(audio.SamplesToBytes(frame), audio.SampleRate)
	if err != nil {
		return err
	}
	return c.write(msg)
}

// Stop cancels the current turn server-side.
func (c *Client) Stop() error {
	msg, err := protocol.NewStopMessage()
	if err != nil {
		return err
	}
	return c.write(msg)
}

// Run dispatches server messages to the callbacks until the connection
// closes or ctx is cancelled.
func (c *Client) Run(ctx context.Context, ev Events) error {
	seq := NewSequencer()
	turnDone := false

	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		msg, err := c.read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		switch msg.Type {
		case protocol.TypeSession:
			if data, err := msg.GetSessionData(); err == nil {
				c.sessionID = data.SessionID
				if ev.OnSession != nil {
					ev.OnSession(data.SessionID)
				}
			}

		case protocol.TypeVADState:
			if data, err := msg.GetVADStateData(); err == nil && ev.OnVADState != nil {
				ev.OnVADState(data.State)
			}

		case protocol.TypeSTTFinal:
			// A new turn: anything unplayed from the last one is stale.
			seq.Reset()
			turnDone = false
			if data, err := msg.GetSTTFinalData(); err == nil && ev.OnTranscript != nil {
				ev.OnTranscript(data.Text)
			}

		case protocol.TypeReplyToken:
			if data, err := msg.GetReplyTokenData(); err == nil && ev.OnToken != nil {
				ev.OnToken(data.Text)
			}

		case protocol.TypeTTSChunk:
			data, err := msg.GetTTSChunkData()
			if err != nil {
				continue
			}
			pcm, err := data.DecodeAudio()
			if err != nil {
				c.logger.Warn("undecodable tts_chunk", "seq", data.Seq)
				continue
			}
			ready := seq.Push(Chunk{
				Seq:        data.Seq,
				Audio:      pcm,
				Format:     data.Format,
				SampleRate: data.SampleRate,
			})
			for _, chunk := range ready {
				if ev.OnAudio != nil {
					ev.OnAudio(chunk)
				}
			}
			if turnDone && seq.Pending() == 0 {
				turnDone = false
				if ev.OnTurnDone != nil {
					ev.OnTurnDone()
				}
			}

		case protocol.TypeTurnDone:
			if seq.Pending() > 0 {
				// Defensive: wait for the gap to fill before resuming.
				turnDone = true
				continue
			}
			if ev.OnTurnDone != nil {
				ev.OnTurnDone()
			}

		case protocol.TypeError:
			if data, err := msg.GetErrorData(); err == nil && ev.OnError != nil {
				ev.OnError(data.Code, data.Message, data.Retryable)
			}
		}
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) read() (*protocol.Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.ParseMessage(data)
}
