package protocol

import (
	"encoding/base64"
	"fmt"
)

// NewStartMessage creates a start message. Pass an empty id for a new session.
func NewStartMessage(sessionID string) (*Message, error) {
	return NewMessage(TypeStart, StartData{SessionID: sessionID})
}

// NewAudioChunkMessage creates an audio_chunk message from raw PCM16 bytes.
func NewAudioChunkMessage(pcm []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeAudioChunk, AudioChunkData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Data:       base64.StdEncoding.EncodeToString(pcm),
	})
}

// NewStopMessage creates a stop message.
func NewStopMessage() (*Message, error) {
	return NewMessage(TypeStop, nil)
}

// NewSessionMessage creates a session confirmation message.
func NewSessionMessage(sessionID string) (*Message, error) {
	return NewMessage(TypeSession, SessionData{SessionID: sessionID})
}

// NewVADStateMessage creates a vad_state message.
func NewVADStateMessage(state string) (*Message, error) {
	return NewMessage(TypeVADState, VADStateData{State: state})
}

// NewSTTFinalMessage creates an stt_final message.
func NewSTTFinalMessage(text string) (*Message, error) {
	return NewMessage(TypeSTTFinal, STTFinalData{Text: text})
}

// NewReplyTokenMessage creates a reply_token message.
func NewReplyTokenMessage(text string) (*Message, error) {
	return NewMessage(TypeReplyToken, ReplyTokenData{Text: text})
}

// NewTTSChunkMessage creates a tts_chunk message.
func NewTTSChunkMessage(audio []byte, format string, sampleRate int, seq uint64) (*Message, error) {
	return NewMessage(TypeTTSChunk, TTSChunkData{
		Format:     format,
		SampleRate: sampleRate,
		Seq:        seq,
		Data:       base64.StdEncoding.EncodeToString(audio),
	})
}

// NewTurnDoneMessage creates a turn_done message.
func NewTurnDoneMessage() (*Message, error) {
	return NewMessage(TypeTurnDone, nil)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string, retryable bool) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message, Retryable: retryable})
}

// GetStartData extracts start payload from a message.
func (m *Message) GetStartData() (*StartData, error) {
	if m.Type != TypeStart {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeStart)
	}
	var data StartData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAudioChunkData extracts audio_chunk payload from a message.
func (m *Message) GetAudioChunkData() (*AudioChunkData, error) {
	if m.Type != TypeAudioChunk {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeAudioChunk)
	}
	var data AudioChunkData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeAudio decodes the base64 PCM payload.
func (d *AudioChunkData) DecodeAudio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Data)
}

// GetSessionData extracts session payload from a message.
func (m *Message) GetSessionData() (*SessionData, error) {
	if m.Type != TypeSession {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeSession)
	}
	var data SessionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetVADStateData extracts vad_state payload from a message.
func (m *Message) GetVADStateData() (*VADStateData, error) {
	if m.Type != TypeVADState {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeVADState)
	}
	var data VADStateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSTTFinalData extracts stt_final payload from a message.
func (m *Message) GetSTTFinalData() (*STTFinalData, error) {
	if m.Type != TypeSTTFinal {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeSTTFinal)
	}
	var data STTFinalData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetReplyTokenData extracts reply_token payload from a message.
func (m *Message) GetReplyTokenData() (*ReplyTokenData, error) {
	if m.Type != TypeReplyToken {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeReplyToken)
	}
	var data ReplyTokenData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTTSChunkData extracts tts_chunk payload from a message.
func (m *Message) GetTTSChunkData() (*TTSChunkData, error) {
	if m.Type != TypeTTSChunk {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeTTSChunk)
	}
	var data TTSChunkData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeAudio decodes the base64 audio payload.
func (d *TTSChunkData) DecodeAudio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Data)
}

// GetErrorData extracts error payload from a message.
func (m *Message) GetErrorData() (*ErrorData, error) {
	if m.Type != TypeError {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeError)
	}
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
