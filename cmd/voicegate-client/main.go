// voicegate-client: streams a WAV file to the gateway as if it were live
// microphone input and saves the spoken reply.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/client"
)

var (
	url       = flag.String("url", "ws://localhost:8000/ws/voice", "gateway voice endpoint")
	sessionID = flag.String("session", "", "resume an existing session")
	wavPath   = flag.String("wav", "", "input WAV file (16-bit PCM)")
	outPath   = flag.String("out", "reply.wav", "where to save the spoken reply")
	logLevel  = flag.String("log", "warn", "log level")
)

func main() {
	flag.Parse()
	log.Init(*logLevel)

	if *wavPath == "" {
		fmt.Fprintln(os.Stderr, "usage: voicegate-client -wav input.wav [-url ws://...]")
		os.Exit(1)
	}

	samples, rate, err := readWAV(*wavPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read wav:", err)
		os.Exit(1)
	}
	fmt.Printf("🎙  %s: %.1fs at %dHz\n", *wavPath, float64(len(samples))/float64(rate), rate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.Config{
		URL:        *url,
		SessionID:  *sessionID,
		SourceRate: rate,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer c.Close()
	fmt.Println("session:", c.SessionID())

	var reply []byte
	replyRate := 0
	turnDone := make(chan struct{}, 1)

	events := client.Events{
		OnVADState: func(state string) {
			fmt.Printf("  [vad: %s]\n", state)
		},
		OnTranscript: func(text string) {
			fmt.Println("you:", text)
			fmt.Print("bot: ")
		},
		OnToken: func(text string) {
			fmt.Print(text)
		},
		OnAudio: func(chunk client.Chunk) {
			reply = append(reply, chunk.Audio...)
			replyRate = chunk.SampleRate
		},
		OnTurnDone: func() {
			fmt.Println()
			select {
			case turnDone <- struct{}{}:
			default:
			}
		},
		OnError: func(code, message string, retryable bool) {
			fmt.Printf("\n⚠️  %s: %s (retryable=%v)\n", code, message, retryable)
			select {
			case turnDone <- struct{}{}:
			default:
			}
		},
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- c.Run(ctx, events)
	}()

	// Pace the file like a live microphone, then trail off into silence so
	// the gateway's VAD sees the utterance end.
	block := rate / 10 // 100ms
	for off := 0; off < len(samples); off += block {
		end := off + block
		if end > len(samples) {
			end = len(samples)
		}
		if err := c.StreamBlock(samples[off:end]); err != nil {
			fmt.Fprintln(os.Stderr, "stream:", err)
			os.Exit(1)
		}
		time.Sleep(100 * time.Millisecond)
	}
	silence := make([]float64, block)
	for i := 0; i < 10; i++ {
		if err := c.StreamBlock(silence); err != nil {
			fmt.Fprintln(os.Stderr, "stream:", err)
			os.Exit(1)
		}
		time.Sleep(100 * time.Millisecond)
	}

	select {
	case <-turnDone:
	case err := <-runErr:
		fmt.Fprintln(os.Stderr, "connection lost:", err)
		os.Exit(1)
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Minute):
		fmt.Fprintln(os.Stderr, "timed out waiting for the reply")
		os.Exit(1)
	}

	if len(reply) > 0 {
		if err := writeWAV(*outPath, reply, replyRate); err != nil {
			fmt.Fprintln(os.Stderr, "write reply:", err)
			os.Exit(1)
		}
		fmt.Printf("💾 reply saved to %s (%.1fs)\n", *outPath, float64(len(reply)/2)/float64(replyRate))
	}
}

// readWAV loads a 16-bit PCM WAV file as mono float64 samples in [-1, 1].
func readWAV(path string) ([]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%s is not a WAV file", path)
	}

	var rate, channels, bits int
	var pcm []byte
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("truncated fmt chunk")
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++ // chunks are word aligned
		}
	}

	if rate == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("only 16-bit PCM is supported, got %d-bit", bits)
	}
	if channels < 1 {
		channels = 1
	}

	frames := len(pcm) / 2 / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		// Mix down to mono.
		var sum float64
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(pcm[(i*channels+ch)*2:]))
			sum += float64(v)
		}
		samples[i] = sum / float64(channels) / 32768.0
	}
	return samples, rate, nil
}

// writeWAV saves raw mono PCM16 as a WAV file.
func writeWAV(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := f.Write(header); err != nil {
		return err
	}
	_, err = f.Write(pcm)
	return err
}
