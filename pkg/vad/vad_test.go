package vad

import (
	"testing"
	"time"
)

func speechFrame() []int16 {
	frame := make([]int16, 480)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 3000
		} else {
			frame[i] = -3000
		}
	}
	return frame
}

func silenceFrame() []int16 {
	return make([]int16, 480)
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(2, 30*time.Millisecond, 600*time.Millisecond)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestDetector_SilenceOnlyNeverEndsUtterance(t *testing.T) {
	d := newTestDetector(t)

	for i := 0; i < 1000; i++ {
		r := d.Process(silenceFrame())
		if r.Speech {
			t.Fatalf("frame %d: silence classified as speech", i)
		}
		if r.UtteranceEnd {
			t.Fatalf("frame %d: utterance end without any speech", i)
		}
	}
}

func TestDetector_UtteranceEndAfterTrailingSilence(t *testing.T) {
	d := newTestDetector(t)

	for i := 0; i < 40; i++ {
		r := d.Process(speechFrame())
		if !r.Speech {
			t.Fatalf("frame %d: speech not detected", i)
		}
	}

	// 600ms at 30ms/frame is 20 frames of silence.
	ends := 0
	for i := 0; i < 25; i++ {
		r := d.Process(silenceFrame())
		if r.UtteranceEnd {
			ends++
			if i != 19 {
				t.Errorf("utterance end at silence frame %d, want 19", i)
			}
		}
	}

	if ends != 1 {
		t.Errorf("got %d utterance ends, want exactly 1", ends)
	}
}

func TestDetector_SpeechResetsTrailingSilence(t *testing.T) {
	d := newTestDetector(t)

	d.Process(speechFrame())
	for i := 0; i < 15; i++ { // 450ms, below the window
		if r := d.Process(silenceFrame()); r.UtteranceEnd {
			t.Fatal("utterance ended before silence window elapsed")
		}
	}
	d.Process(speechFrame()) // silence counter resets

	for i := 0; i < 19; i++ {
		if r := d.Process(silenceFrame()); r.UtteranceEnd {
			t.Fatalf("utterance ended early at frame %d", i)
		}
	}
	if r := d.Process(silenceFrame()); !r.UtteranceEnd {
		t.Error("utterance should end after full silence window")
	}
}

func TestDetector_Reset(t *testing.T) {
	d := newTestDetector(t)

	d.Process(speechFrame())
	d.Reset()

	for i := 0; i < 30; i++ {
		if r := d.Process(silenceFrame()); r.UtteranceEnd {
			t.Fatal("utterance end after Reset with no new speech")
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		level   Aggressiveness
		frame   time.Duration
		silence time.Duration
		wantErr bool
	}{
		{"valid", 2, 30 * time.Millisecond, 600 * time.Millisecond, false},
		{"level too high", 4, 30 * time.Millisecond, 600 * time.Millisecond, true},
		{"level negative", -1, 30 * time.Millisecond, 600 * time.Millisecond, true},
		{"zero frame duration", 1, 0, 600 * time.Millisecond, true},
		{"zero silence window", 1, 30 * time.Millisecond, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.level, tt.frame, tt.silence)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDetector_AggressivenessOrdering(t *testing.T) {
	// A soft frame should pass a permissive detector and fail a strict one.
	soft := make([]int16, 480)
	for i := range soft {
		if i%2 == 0 {
			soft[i] = 400 // RMS ~0.012
		} else {
			soft[i] = -400
		}
	}

	permissive, _ := New(0, 30*time.Millisecond, 600*time.Millisecond)
	strict, _ := New(3, 30*time.Millisecond, 600*time.Millisecond)

	if !permissive.Process(soft).Speech {
		t.Error("permissive detector should classify soft frame as speech")
	}
	if strict.Process(soft).Speech {
		t.Error("strict detector should classify soft frame as silence")
	}
}
