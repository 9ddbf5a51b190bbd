// Package audio provides the mono float32 sample buffer shared by every
// pipeline stage, plus PCM and WAV container conversions.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// DefaultSampleRate is the pipeline-wide sample rate. Every stage assumes
// 16 kHz mono unless the buffer was explicitly resampled.
const DefaultSampleRate = 16000

// Buffer is an ordered sequence of mono float32 samples tagged with a
// sample rate. Values are nominally within [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// New returns a buffer over samples at rate hz. A non-positive rate falls
// back to DefaultSampleRate.
func New(samples []float32, rate int) Buffer {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return Buffer{Samples: samples, SampleRate: rate}
}

// Len returns the sample count.
func (b Buffer) Len() int { return len(b.Samples) }

// Duration returns the buffer length as wall-clock time.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || len(b.Samples) == 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// RMS returns the root-mean-square amplitude of the whole buffer.
func (b Buffer) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Peak returns the maximum absolute sample value.
func (b Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// Concat joins buffers in order. All inputs must share one sample rate;
// the first non-empty buffer's rate wins.
func Concat(bufs []Buffer) Buffer {
	total := 0
	rate := DefaultSampleRate
	for _, b := range bufs {
		total += len(b.Samples)
		if b.SampleRate > 0 {
			rate = b.SampleRate
		}
	}
	out := make([]float32, 0, total)
	for _, b := range bufs {
		out = append(out, b.Samples...)
	}
	return Buffer{Samples: out, SampleRate: rate}
}

// Clip hard-limits every sample to [-1, 1] in place and returns the buffer.
func (b Buffer) Clip() Buffer {
	for i, s := range b.Samples {
		if s > 1 {
			b.Samples[i] = 1
		} else if s < -1 {
			b.Samples[i] = -1
		}
	}
	return b
}

// FromFloat32LE decodes raw little-endian float32 PCM bytes. Trailing
// partial samples are dropped.
func FromFloat32LE(data []byte, rate int) Buffer {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return New(samples, rate)
}

// ToFloat32LE encodes samples as raw little-endian float32 PCM bytes.
func (b Buffer) ToFloat32LE() []byte {
	out := make([]byte, len(b.Samples)*4)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// FromPCM16 decodes little-endian signed 16-bit PCM into float32 samples.
func FromPCM16(data []byte, rate int) Buffer {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return New(samples, rate)
}

// ToPCM16 encodes samples as little-endian signed 16-bit PCM, clipping
// out-of-range values.
func (b Buffer) ToPCM16() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		f := float64(s)
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		v := int16(math.Round(f * 32767))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
