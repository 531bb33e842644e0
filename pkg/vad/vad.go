// Package vad classifies audio frames as speech or silence and detects
// utterance boundaries for turn-taking.
package vad

import (
	"fmt"
	"time"

	"github.com/samaira-ai/voicegate/pkg/audio"
)

// Aggressiveness trades false-positive speech detection against missed soft
// speech. 0 is the most permissive, 3 the most strict. It is fixed at
// construction; changing it requires a new Detector.
type Aggressiveness int

// speechThresholds maps aggressiveness to the minimum RMS amplitude
// considered speech. Tuned for 16kHz 20-30ms frames.
var speechThresholds = [4]float64{0.006, 0.010, 0.015, 0.022}

// Result is the per-frame classification outcome.
type Result struct {
	// Speech is true if the frame was classified as speech.
	Speech bool

	// UtteranceEnd fires once when trailing silence after speech exceeds
	// the configured window. It never fires on a silence-only stream.
	UtteranceEnd bool
}

// Detector classifies frames and tracks utterance boundaries.
//
// Per-frame classification is stateless; boundary detection is stateful:
// the detector tracks contiguous trailing silence since the last speech
// frame and whether any speech has occurred in the current utterance.
type Detector struct {
	threshold     float64
	frameDuration time.Duration
	silenceWindow time.Duration

	speechSeen      bool
	trailingSilence time.Duration
}

// New creates a Detector. silenceWindow is the trailing silence duration
// that marks the end of an utterance.
func New(level Aggressiveness, frameDuration, silenceWindow time.Duration) (*Detector, error) {
	if level < 0 || level > 3 {
		return nil, fmt.Errorf("vad: aggressiveness must be 0-3, got %d", level)
	}
	if frameDuration <= 0 {
		return nil, fmt.Errorf("vad: frame duration must be positive, got %s", frameDuration)
	}
	if silenceWindow <= 0 {
		return nil, fmt.Errorf("vad: silence window must be positive, got %s", silenceWindow)
	}

	return &Detector{
		threshold:     speechThresholds[level],
		frameDuration: frameDuration,
		silenceWindow: silenceWindow,
	}, nil
}

// Process classifies one frame in arrival order.
func (d *Detector) Process(frame []int16) Result {
	speech := audio.RMS(frame) >= d.threshold

	if speech {
		d.speechSeen = true
		d.trailingSilence = 0
		return Result{Speech: true}
	}

	if !d.speechSeen {
		// Silence before any speech is discarded; no boundary can fire.
		return Result{}
	}

	d.trailingSilence += d.frameDuration
	if d.trailingSilence >= d.silenceWindow {
		// Edge-triggered: arm for the next utterance.
		d.speechSeen = false
		d.trailingSilence = 0
		return Result{UtteranceEnd: true}
	}

	return Result{}
}

// Reset clears boundary state. Call when a turn is cancelled.
func (d *Detector) Reset() {
	d.speechSeen = false
	d.trailingSilence = 0
}
