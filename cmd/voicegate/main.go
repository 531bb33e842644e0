// voicegate: real-time duplex voice gateway.
// Accepts WebSocket connections from voice clients and runs the
// capture → transcribe → generate → speak loop for each session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samaira-ai/voicegate/internal/config"
	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/engine"
	"github.com/samaira-ai/voicegate/pkg/server"
	"github.com/samaira-ai/voicegate/pkg/session"
	"github.com/samaira-ai/voicegate/pkg/turn"
	"github.com/samaira-ai/voicegate/pkg/vad"
)

var version = "1.0.0"

var addr = flag.String("addr", "", "listen address (overrides VOICEGATE_ADDR)")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	log.Init(cfg.LogLevel)

	fmt.Println()
	fmt.Println("🎙  voicegate v" + version)
	fmt.Println("   duplex voice gateway")
	fmt.Println()

	if cfg.OpenAIKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is required")
		os.Exit(1)
	}

	openai, err := engine.NewOpenAI(cfg.OpenAIKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
	openai.ChatModel = cfg.LLMModel
	openai.Voice = cfg.TTSVoice

	var synth engine.Synthesizer = openai
	if cfg.TTSProvider == "elevenlabs" {
		el, err := engine.NewElevenLabs(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "engine:", err)
			os.Exit(1)
		}
		synth = el
	}

	registry := session.NewRegistry(session.Config{
		Turn: turn.Config{
			FrameDuration:     cfg.FrameDuration,
			VADAggressiveness: vad.Aggressiveness(cfg.VADAggressiveness),
			SilenceWindow:     cfg.VADSilence,
			MaxUtterance:      cfg.MaxUtterance,
			MaxTurnDuration:   cfg.MaxTurnDuration,
			HeldFrameCap:      cfg.HeldFrameCap,
			HistoryWindow:     cfg.HistoryWindow,
			Language:          cfg.ASRLanguage,
			SpanLookahead:     cfg.SpanLookahead,
			SpanMaxChars:      cfg.SpanMaxChars,
		},
		MaxSessions: cfg.MaxSessions,
		SessionTTL:  cfg.SessionTTL,
		IdleTimeout: cfg.IdleTimeout,
	}, openai, openai, synth)

	srv := server.New(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go registry.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Addr)
	}()

	log.Info("voicegate up", "addr", cfg.Addr, "tts", cfg.TTSProvider, "model", cfg.LLMModel)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	_ = srv.Shutdown()
	registry.Close()
}
