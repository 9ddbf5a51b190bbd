package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// fft computes the in-place radix-2 Cooley-Tukey FFT. len(x) must be a
// power of two.
func fft(x []complex128) error {
	n := len(x)
	if n == 0 || n&(n-1) != 0 {
		return fmt.Errorf("fft length %d is not a power of two", n)
	}

	// Bit-reversal permutation.
	for i, j := 0, 0; i < n; i++ {
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
		mask := n >> 1
		for j&mask != 0 {
			j &^= mask
			mask >>= 1
		}
		j |= mask
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)
		w := cmplx.Exp(complex(0, step))
		for start := 0; start < n; start += size {
			tw := complex(1, 0)
			for k := 0; k < half; k++ {
				even := x[start+k]
				odd := x[start+k+half] * tw
				x[start+k] = even + odd
				x[start+k+half] = even - odd
				tw *= w
			}
		}
	}
	return nil
}

// powerSpectrum returns |FFT(frame*window)|^2 for the first n/2+1 bins.
// frame shorter than n is zero-padded.
func powerSpectrum(frame []float32, window []float64, n int) ([]float64, error) {
	x := make([]complex128, n)
	for i := 0; i < n && i < len(frame); i++ {
		x[i] = complex(float64(frame[i])*window[i], 0)
	}
	if err := fft(x); err != nil {
		return nil, err
	}
	out := make([]float64, n/2+1)
	for i := range out {
		re := real(x[i])
		im := imag(x[i])
		out[i] = re*re + im*im
	}
	return out, nil
}

// hannWindow returns an n-point Hann window.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
