package audio

import (
	"math"
	"testing"
	"time"
)

func TestFramer_ConstantFrameSize(t *testing.T) {
	f, err := NewFramer(48000, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("NewFramer() error = %v", err)
	}

	if f.FrameSamples() != 480 {
		t.Fatalf("FrameSamples() = %d, want 480", f.FrameSamples())
	}

	// Feed irregular block sizes and verify every frame is exactly 480 samples.
	blockSizes := []int{7, 533, 1024, 1, 89, 4096, 240, 2048, 3, 911}
	total := 0
	frames := 0
	for _, n := range blockSizes {
		block := make([]float64, n)
		for i := range block {
			block[i] = math.Sin(float64(total+i) * 0.01)
		}
		total += n

		for _, frame := range f.Push(block) {
			if len(frame) != 480 {
				t.Fatalf("frame %d has %d samples, want 480", frames, len(frame))
			}
			frames++
		}
	}

	// 48kHz -> 16kHz is 3:1; roughly total/3 output samples.
	wantFrames := (total / 3) / 480
	if frames < wantFrames-1 || frames > wantFrames+1 {
		t.Errorf("got %d frames, want about %d", frames, wantFrames)
	}
}

func TestFramer_SameRatePassthrough(t *testing.T) {
	f, err := NewFramer(16000, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewFramer() error = %v", err)
	}

	block := make([]float64, 641) // two 320-sample frames plus carry
	for i := range block {
		block[i] = 0.5
	}

	frames := f.Push(block)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}

	for _, frame := range frames {
		for i, s := range frame {
			if s != 16384 { // round(0.5 * 32767)
				t.Fatalf("sample %d = %d, want 16384", i, s)
			}
		}
	}
}

func TestFramer_EmptyBlockDropped(t *testing.T) {
	f, _ := NewFramer(44100, 30*time.Millisecond)

	if frames := f.Push(nil); frames != nil {
		t.Errorf("Push(nil) = %v, want nil", frames)
	}
	if frames := f.Push([]float64{}); frames != nil {
		t.Errorf("Push(empty) = %v, want nil", frames)
	}

	// Boundary accounting must survive: a normal block still frames correctly.
	block := make([]float64, 44100) // 1s -> 16000 output samples
	frames := f.Push(block)
	if len(frames) != 16000/480 {
		t.Errorf("got %d frames after empty blocks, want %d", len(frames), 16000/480)
	}
}

func TestFramer_InvalidConfig(t *testing.T) {
	if _, err := NewFramer(0, 30*time.Millisecond); err == nil {
		t.Error("expected error for zero source rate")
	}
	if _, err := NewFramer(48000, 10*time.Millisecond); err == nil {
		t.Error("expected error for 10ms frames")
	}
	if _, err := NewFramer(48000, 50*time.Millisecond); err == nil {
		t.Error("expected error for 50ms frames")
	}
}

func TestFramer_Reset(t *testing.T) {
	f, _ := NewFramer(16000, 30*time.Millisecond)

	f.Push(make([]float64, 100))
	f.Reset()

	// After reset a fresh 1s block produces full frames from a clean boundary.
	frames := f.Push(make([]float64, 16000))
	if len(frames) != 16000/480 {
		t.Errorf("got %d frames after reset, want %d", len(frames), 16000/480)
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"full scale", 1.0, 32767},
		{"negative full scale", -1.0, -32767},
		{"clipped high", 2.5, 32767},
		{"clipped low", -3.0, -32767},
		{"rounding", 0.00004, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quantize(tt.in); got != tt.want {
				t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 0x0102}
	got := BytesToSamples(SamplesToBytes(samples))

	if len(got) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(got), len(samples))
	}
	for i, s := range samples {
		if got[i] != s {
			t.Errorf("sample %d = %d, want %d", i, got[i], s)
		}
	}
}

func TestRMS(t *testing.T) {
	if rms := RMS(nil); rms != 0 {
		t.Errorf("RMS(nil) = %f, want 0", rms)
	}
	if rms := RMS([]int16{0, 0, 0}); rms != 0 {
		t.Errorf("RMS(silence) = %f, want 0", rms)
	}

	full := []int16{32767, -32767, 32767, -32767}
	if rms := RMS(full); rms < 0.99 || rms > 1.0 {
		t.Errorf("RMS(full scale) = %f, want ~1.0", rms)
	}
}
