package engine

import (
	"bytes"
	"encoding/binary"
)

// encodeWAV wraps PCM16 frames in a minimal mono RIFF/WAVE container.
// Whisper-style transcription endpoints want a self-describing file.
func encodeWAV(frames [][]int16, sampleRate int) []byte {
	samples := 0
	for _, f := range frames {
		samples += len(f)
	}
	dataLen := samples * 2

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, f := range frames {
		for _, s := range f {
			binary.Write(buf, binary.LittleEndian, s)
		}
	}

	return buf.Bytes()
}
