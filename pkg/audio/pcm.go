// Package audio converts captured audio into the fixed frame format the
// rest of the pipeline consumes: 16kHz mono 16-bit PCM frames of constant
// duration, independent of how the capture device sizes its blocks.
package audio

import "math"

// SampleRate is the pipeline-wide sample rate in Hz.
// Both the transcription engine and the VAD expect 16kHz mono PCM16.
const SampleRate = 16000

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// RMS returns the root mean square amplitude of the samples,
// normalized to [0.0, 1.0].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}

// Quantize clamps a float sample to [-1.0, 1.0] and scales it to int16,
// rounding to the nearest representable value. Clamping first avoids
// overflow wraparound on hot input.
func Quantize(s float64) int16 {
	if s > 1.0 {
		s = 1.0
	} else if s < -1.0 {
		s = -1.0
	}

	v := math.Round(s * 32767)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}
