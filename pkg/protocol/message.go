// Package protocol defines the WebSocket message types for the duplex voice
// session. This package is shared between the voicegate server and clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeStart      MessageType = "start"       // Begin or resume a session
	TypeAudioChunk MessageType = "audio_chunk" // One PCM16 audio frame
	TypeStop       MessageType = "stop"        // Cancel the current turn, keep session

	// Server → Client messages
	TypeSession    MessageType = "session"     // Assigns/confirms the session id
	TypeVADState   MessageType = "vad_state"   // Speech/silence UI feedback
	TypeSTTFinal   MessageType = "stt_final"   // Completed transcript for the turn
	TypeReplyToken MessageType = "reply_token" // One incremental reply token
	TypeTTSChunk   MessageType = "tts_chunk"   // One playable audio chunk
	TypeTurnDone   MessageType = "turn_done"   // Turn fully complete
	TypeError      MessageType = "error"       // Turn-level or session-level error
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeStart, TypeAudioChunk, TypeStop,
		TypeSession, TypeVADState, TypeSTTFinal,
		TypeReplyToken, TypeTTSChunk, TypeTurnDone, TypeError:
		return true
	}
	return false
}

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// StartData begins or resumes a session. SessionID is empty for a new session.
type StartData struct {
	SessionID string `json:"session_id,omitempty"`
}

// AudioChunkData contains one audio frame from the client microphone.
type AudioChunkData struct {
	Format     string `json:"format"`      // "pcm16"
	SampleRate int    `json:"sample_rate"` // 16000
	Data       string `json:"data"`        // base64 encoded PCM16
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// SessionData confirms the session id assigned by the server.
type SessionData struct {
	SessionID string `json:"session_id"`
}

// VADState values carried by vad_state messages.
const (
	VADSpeech  = "speech"
	VADSilence = "silence"
)

// VADStateData reports speech/silence transitions for UI feedback only.
type VADStateData struct {
	State string `json:"state"` // "speech" or "silence"
}

// STTFinalData carries the completed transcript for a turn.
type STTFinalData struct {
	Text string `json:"text"`
}

// ReplyTokenData carries one incremental reply token.
type ReplyTokenData struct {
	Text string `json:"text"`
}

// TTSChunkData carries one playable synthesized audio chunk. Seq is the
// client's sole ordering key: strictly increasing per turn, no gaps.
type TTSChunkData struct {
	Format     string `json:"format"`      // "pcm16"
	SampleRate int    `json:"sample_rate"` // e.g. 24000
	Seq        uint64 `json:"seq"`
	Data       string `json:"data"` // base64 encoded audio
}

// ErrorData describes a turn-level or session-level error. Retryable tells
// the client whether repeating the turn is worthwhile.
type ErrorData struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error codes carried by error messages.
const (
	CodeEngineTransient   = "engine_transient"
	CodeEngineFatal       = "engine_fatal"
	CodeProtocolViolation = "protocol_violation"
	CodeCapacityExceeded  = "capacity_exceeded"
	CodeTurnTimeout       = "turn_timeout"
	CodeSessionLimit      = "session_limit"
)
