package audio

import (
	"fmt"
	"time"

	"github.com/samaira-ai/voicegate/internal/log"
)

// Framer converts a stream of native-rate float samples into fixed-duration
// 16kHz PCM16 frames using linear interpolation resampling.
//
// Capture devices deliver blocks of arbitrary size; the framer carries
// unconsumed source samples and partial frames across Push calls so that
// every emitted frame has exactly the same sample count.
type Framer struct {
	srcRate      int
	frameSamples int
	step         float64 // source samples consumed per output sample

	pos     float64   // fractional read position into src
	src     []float64 // unconsumed native-rate samples
	pending []int16   // resampled samples not yet forming a full frame
}

// NewFramer creates a Framer for the given capture rate and frame duration.
// Frame duration must be between 20 and 30 milliseconds.
func NewFramer(srcRate int, frameDuration time.Duration) (*Framer, error) {
	if srcRate <= 0 {
		return nil, fmt.Errorf("audio: invalid source rate %d", srcRate)
	}
	if frameDuration < 20*time.Millisecond || frameDuration > 30*time.Millisecond {
		return nil, fmt.Errorf("audio: frame duration must be 20-30ms, got %s", frameDuration)
	}

	frameSamples := int(frameDuration.Seconds() * SampleRate)

	return &Framer{
		srcRate:      srcRate,
		frameSamples: frameSamples,
		step:         float64(srcRate) / float64(SampleRate),
		pending:      make([]int16, 0, frameSamples),
	}, nil
}

// FrameSamples returns the number of samples per emitted frame.
func (f *Framer) FrameSamples() int {
	return f.frameSamples
}

// Push feeds a block of native-rate float samples and returns zero or more
// complete frames. Zero-length blocks are dropped with a warning and never
// disturb the frame boundary accounting.
func (f *Framer) Push(block []float64) [][]int16 {
	if len(block) == 0 {
		log.Warn("audio: dropping empty capture block")
		return nil
	}

	f.src = append(f.src, block...)

	// Resample everything we can interpolate. The last source sample stays
	// buffered until its successor arrives so interpolation never reads
	// past the end.
	for f.pos+1 < float64(len(f.src)) {
		i := int(f.pos)
		frac := f.pos - float64(i)
		s := f.src[i] + frac*(f.src[i+1]-f.src[i])
		f.pending = append(f.pending, Quantize(s))
		f.pos += f.step
	}

	// Drop consumed source samples, keeping the fractional position.
	if n := int(f.pos); n > 0 {
		if n > len(f.src) {
			n = len(f.src)
		}
		f.src = f.src[n:]
		f.pos -= float64(n)
	}

	var frames [][]int16
	for len(f.pending) >= f.frameSamples {
		frame := make([]int16, f.frameSamples)
		copy(frame, f.pending[:f.frameSamples])
		f.pending = f.pending[f.frameSamples:]
		frames = append(frames, frame)
	}
	return frames
}

// Reset discards all carried state. Call between sessions.
func (f *Framer) Reset() {
	f.pos = 0
	f.src = f.src[:0]
	f.pending = f.pending[:0]
}
