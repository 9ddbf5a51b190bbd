package dsp

import "math"

const (
	numMelBands = 40
	numMFCC     = 13
	logFloor    = 1e-10
)

func hzToMel(hz float64) float64  { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melFilterbank builds nMels triangular filters over n/2+1 spectrum bins,
// spanning 0 Hz to Nyquist.
func melFilterbank(nMels, nFFT, sampleRate int) [][]float64 {
	nBins := nFFT/2 + 1
	melLo := hzToMel(0)
	melHi := hzToMel(float64(sampleRate) / 2)

	bins := make([]int, nMels+2)
	for i := range bins {
		mel := melLo + (melHi-melLo)*float64(i)/float64(nMels+1)
		bins[i] = int(math.Floor(float64(nFFT+1) * melToHz(mel) / float64(sampleRate)))
	}

	fb := make([][]float64, nMels)
	for m := 1; m <= nMels; m++ {
		row := make([]float64, nBins)
		lo, cen, hi := bins[m-1], bins[m], bins[m+1]
		for k := lo; k < cen && k < nBins; k++ {
			if cen > lo {
				row[k] = float64(k-lo) / float64(cen-lo)
			}
		}
		for k := cen; k < hi && k < nBins; k++ {
			if hi > cen {
				row[k] = float64(hi-k) / float64(hi-cen)
			}
		}
		fb[m-1] = row
	}
	return fb
}

// mfccFrames computes per-frame cepstral coefficients: Hann window →
// magnitude-squared spectrum → mel projection (floored before log) →
// type-III DCT, keeping the first numMFCC coefficients.
func mfccFrames(signal []float32, sampleRate, frameLen, hop int) ([][numMFCC]float64, error) {
	fs := frames(signal, frameLen, hop)
	if len(fs) == 0 {
		return nil, nil
	}

	window := hannWindow(frameLen)
	fb := melFilterbank(numMelBands, frameLen, sampleRate)

	out := make([][numMFCC]float64, 0, len(fs))
	for _, frame := range fs {
		power, err := powerSpectrum(frame, window, frameLen)
		if err != nil {
			return nil, err
		}

		logMel := make([]float64, numMelBands)
		for m, row := range fb {
			var acc float64
			for k, w := range row {
				if w != 0 {
					acc += w * power[k]
				}
			}
			if acc < logFloor {
				acc = logFloor
			}
			logMel[m] = math.Log(acc)
		}

		var coef [numMFCC]float64
		for n := 0; n < numMFCC; n++ {
			var acc float64
			for k := 0; k < numMelBands; k++ {
				acc += logMel[k] * math.Cos(math.Pi*float64(n)*(float64(k)+0.5)/float64(numMelBands))
			}
			coef[n] = acc
		}
		out = append(out, coef)
	}
	return out, nil
}
