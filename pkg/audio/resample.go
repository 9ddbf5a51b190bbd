package audio

// ResampleRatio resamples by the rational ratio up/down using linear
// interpolation. Output length is len(in)*up/down. A simple resampler
// suited to speech; callers needing anti-aliased quality should band-limit
// first.
func ResampleRatio(in []float32, up, down int) []float32 {
	if up <= 0 || down <= 0 || len(in) == 0 {
		return nil
	}
	if up == down {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	newLen := len(in) * up / down
	if newLen == 0 {
		return []float32{}
	}
	return ResampleToLength(in, newLen)
}

// ResampleToLength stretches or squeezes in to exactly n samples by linear
// interpolation.
func ResampleToLength(in []float32, n int) []float32 {
	if n <= 0 || len(in) == 0 {
		return []float32{}
	}
	out := make([]float32, n)
	if len(in) == 1 {
		for i := range out {
			out[i] = in[0]
		}
		return out
	}
	if n == 1 {
		out[0] = in[0]
		return out
	}
	step := float64(len(in)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + frac*(in[idx+1]-in[idx])
	}
	return out
}

// ResampleRate converts a buffer between sample rates.
func ResampleRate(b Buffer, toRate int) Buffer {
	if toRate <= 0 || b.SampleRate == toRate || len(b.Samples) == 0 {
		return Buffer{Samples: b.Samples, SampleRate: toRate}
	}
	g := gcd(b.SampleRate, toRate)
	out := ResampleRatio(b.Samples, toRate/g, b.SampleRate/g)
	return Buffer{Samples: out, SampleRate: toRate}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a <= 0 {
		return 1
	}
	return a
}
