// Package dsp implements the prosodic feature extraction used by the
// emotion classifier: framing, RMS/ZCR envelopes, autocorrelation pitch
// tracking, mel-cepstral coefficients, and speaking-rate estimation. It is
// pure computation with no I/O and no external numeric dependencies.
package dsp

import "math"

// Analysis window defaults shared by every sub-feature.
const (
	FrameLength = 2048
	HopLength   = 512
)

// frames slices signal into overlapping windows of frameLen samples every
// hop samples. A signal shorter than one window degenerates to a single
// frame holding the whole signal. Returned frames alias the input.
func frames(signal []float32, frameLen, hop int) [][]float32 {
	if len(signal) == 0 {
		return nil
	}
	n := (len(signal) - frameLen) / hop
	if n <= 0 {
		return [][]float32{signal}
	}
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		start := i * hop
		out[i] = signal[start : start+frameLen]
	}
	return out
}

// frameRMS returns the per-frame root-mean-square energy envelope.
func frameRMS(signal []float32, frameLen, hop int) []float64 {
	fs := frames(signal, frameLen, hop)
	out := make([]float64, len(fs))
	for i, f := range fs {
		var sum float64
		for _, s := range f {
			sum += float64(s) * float64(s)
		}
		out[i] = math.Sqrt(sum / float64(len(f)))
	}
	return out
}

// frameZCR returns the per-frame zero-crossing rate in [0, 1].
func frameZCR(signal []float32, frameLen, hop int) []float64 {
	fs := frames(signal, frameLen, hop)
	out := make([]float64, len(fs))
	for i, f := range fs {
		if len(f) < 2 {
			continue
		}
		crossings := 0
		prev := sign(f[0])
		for _, s := range f[1:] {
			cur := sign(s)
			if cur != prev {
				crossings++
			}
			prev = cur
		}
		out[i] = float64(crossings) / float64(len(f)-1)
	}
	return out
}

// sign treats zero as positive so an exact zero between samples counts as
// one crossing, the same convention as signbit-based ZCR.
func sign(v float32) int {
	if v < 0 {
		return -1
	}
	return 1
}
