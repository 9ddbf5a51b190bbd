package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const wavHeaderSize = 44

// EncodeWAV wraps the buffer in a RIFF/WAVE container with a 16-bit PCM
// payload. The result is a single self-contained blob; callers streaming
// audio must send exactly one blob per clip because WAV headers cannot be
// concatenated.
func EncodeWAV(b Buffer) []byte {
	pcm := b.ToPCM16()
	sampleRate := b.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	const channels = 1
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	return append(header, pcm...)
}

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM or 32-bit
// float samples. Multi-channel input is downmixed to mono by averaging.
func DecodeWAV(data []byte) (Buffer, error) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Buffer{}, fmt.Errorf("not a RIFF/WAVE container")
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		payload    []byte
	)

	// Chunk walk. fmt must precede data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Buffer{}, fmt.Errorf("wav fmt chunk too short: %d bytes", size)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			payload = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
		if payload != nil && sampleRate != 0 {
			break
		}
	}

	if payload == nil || channels <= 0 || sampleRate <= 0 {
		return Buffer{}, fmt.Errorf("wav missing fmt or data chunk")
	}

	var interleaved []float32
	switch {
	case format == 1 && bits == 16:
		n := len(payload) / 2
		interleaved = make([]float32, n)
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
			interleaved[i] = float32(v) / 32768.0
		}
	case format == 3 && bits == 32:
		n := len(payload) / 4
		interleaved = make([]float32, n)
		for i := 0; i < n; i++ {
			interleaved[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
	default:
		return Buffer{}, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", format, bits)
	}

	if channels == 1 {
		return New(interleaved, sampleRate), nil
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return New(mono, sampleRate), nil
}
