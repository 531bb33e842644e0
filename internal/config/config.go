// Package config provides environment-driven configuration for voicegate.
// A .env file in the working directory is loaded if present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all tunable parameters for the voice gateway.
type Config struct {
	// Server
	Addr     string // listen address, e.g. ":8000"
	LogLevel string // debug, info, warn, error

	// Engines
	OpenAIKey         string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	TTSProvider       string // "openai" or "elevenlabs"
	LLMModel          string
	TTSVoice          string
	ASRLanguage       string // language hint for transcription

	// Audio framing
	FrameDuration time.Duration // 20-30ms per frame

	// VAD
	VADAggressiveness int           // 0 (permissive) to 3 (strict)
	VADSilence        time.Duration // trailing silence that ends an utterance

	// Turn policy
	MaxUtterance    time.Duration // hard cap before forced transcription
	MaxTurnDuration time.Duration // force-terminate a runaway turn
	HeldFrameCap    int           // barge-in queue depth before dropping oldest

	// Streaming bridge
	SpanLookahead int // concurrent synthesis spans in flight
	SpanMaxChars  int // max characters per synthesis span

	// Sessions
	IdleTimeout    time.Duration // close session after this long without audio
	SessionTTL     time.Duration // retain disconnected session state this long
	MaxSessions    int           // concurrent session cap
	HistoryWindow  int           // prior turns passed as generation context
}

// Load reads configuration from the environment.
// Missing optional values fall back to defaults.
func Load() (*Config, error) {
	// Best effort; running without a .env file is fine.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:     getEnv("VOICEGATE_ADDR", ":8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		TTSProvider:       getEnv("TTS_PROVIDER", "openai"),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		TTSVoice:          getEnv("TTS_VOICE", "alloy"),
		ASRLanguage:       getEnv("ASR_LANGUAGE", "hi"),

		FrameDuration: getDuration("FRAME_DURATION_MS", 30) * time.Millisecond,

		VADAggressiveness: getInt("VAD_AGGRESSIVENESS", 2),
		VADSilence:        getDuration("VAD_SILENCE_MS", 600) * time.Millisecond,

		MaxUtterance:    getDuration("MAX_UTTERANCE_MS", 20000) * time.Millisecond,
		MaxTurnDuration: getDuration("MAX_TURN_MS", 120000) * time.Millisecond,
		HeldFrameCap:    getInt("HELD_FRAME_CAP", 1024),

		SpanLookahead: getInt("SPAN_LOOKAHEAD", 2),
		SpanMaxChars:  getInt("SPAN_MAX_CHARS", 200),

		IdleTimeout:   getDuration("IDLE_TIMEOUT_MS", 60000) * time.Millisecond,
		SessionTTL:    getDuration("SESSION_TTL_MINUTES", 30) * time.Minute,
		MaxSessions:   getInt("MAX_SESSIONS", 64),
		HistoryWindow: getInt("HISTORY_WINDOW", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.FrameDuration < 20*time.Millisecond || c.FrameDuration > 30*time.Millisecond {
		return fmt.Errorf("config: frame duration must be 20-30ms, got %s", c.FrameDuration)
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return fmt.Errorf("config: VAD aggressiveness must be 0-3, got %d", c.VADAggressiveness)
	}
	if c.VADSilence <= 0 {
		return errors.New("config: VAD silence window must be positive")
	}
	if c.SpanLookahead < 1 {
		return errors.New("config: span lookahead must be at least 1")
	}
	if c.MaxSessions < 1 {
		return errors.New("config: max sessions must be at least 1")
	}
	if c.TTSProvider == "elevenlabs" && (c.ElevenLabsKey == "" || c.ElevenLabsVoiceID == "") {
		return errors.New("config: ElevenLabs TTS requires ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback int64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n)
		}
	}
	return time.Duration(fallback)
}
