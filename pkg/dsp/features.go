package dsp

import (
	"log/slog"
	"math"

	"github.com/sori-ai/sori/pkg/audio"
)

// Pitch search bounds and acceptance threshold for the autocorrelation
// tracker.
const (
	pitchMinHz        = 65.0
	pitchMaxHz        = 2093.0
	pitchPeakRatio    = 0.25
	voicedStdEpsilon  = 1e-6
	defaultPitchMean  = 150.0
	defaultPitchStd   = 25.0
	minRateDurationS  = 0.1
	rateThresholdFrac = 0.5
)

// FeatureSet holds the per-utterance scalar prosodic features consumed by
// the emotion classifier. Built once per utterance; treat as immutable.
type FeatureSet struct {
	F0Mean       float64
	F0Std        float64
	RMSMean      float64
	RMSStd       float64
	ZCRMean      float64
	SpeakingRate float64
	MFCCMean     [numMFCC]float64

	// PitchFallback marks that no frame yielded a voiced pitch and the
	// neutral default was substituted.
	PitchFallback bool
}

// Extractor computes a FeatureSet from a raw utterance buffer. Pure
// computation; safe for concurrent use.
type Extractor struct {
	Logger *slog.Logger

	// OnPitchFallback is invoked whenever F0 detection finds no voiced
	// frame and the neutral default is substituted.
	OnPitchFallback func()
}

// Extract computes the feature set for buf. Numerical failures in a
// sub-feature are logged and zero-substituted; empty input yields a
// zero/default set. Extract never fails the pipeline.
func (e *Extractor) Extract(buf audio.Buffer) FeatureSet {
	var fs FeatureSet
	if buf.Len() == 0 {
		fs.F0Mean = defaultPitchMean
		fs.F0Std = defaultPitchStd
		fs.PitchFallback = true
		e.countFallback()
		return fs
	}

	sr := buf.SampleRate
	if sr <= 0 {
		sr = audio.DefaultSampleRate
	}

	f0s := pitchTrack(buf.Samples, sr, FrameLength, HopLength)
	if len(f0s) == 0 {
		// No voiced frame at all. Substituting a neutral pitch keeps a
		// zero F0 from biasing classification toward sad/calm.
		fs.F0Mean = defaultPitchMean
		fs.F0Std = defaultPitchStd
		fs.PitchFallback = true
		e.countFallback()
	} else {
		fs.F0Mean, fs.F0Std = meanStd(f0s)
	}

	rms := frameRMS(buf.Samples, FrameLength, HopLength)
	fs.RMSMean, fs.RMSStd = meanStd(rms)

	zcr := frameZCR(buf.Samples, FrameLength, HopLength)
	fs.ZCRMean, _ = meanStd(zcr)

	coefs, err := mfccFrames(buf.Samples, sr, FrameLength, HopLength)
	if err != nil {
		e.logWarn("mfcc failed", err)
	} else {
		for _, frame := range coefs {
			for i := range fs.MFCCMean {
				fs.MFCCMean[i] += frame[i]
			}
		}
		if n := float64(len(coefs)); n > 0 {
			for i := range fs.MFCCMean {
				fs.MFCCMean[i] /= n
			}
		}
	}

	fs.SpeakingRate = speakingRate(rms, buf.Len(), sr)
	return fs
}

func (e *Extractor) countFallback() {
	if e.OnPitchFallback != nil {
		e.OnPitchFallback()
	}
}

func (e *Extractor) logWarn(msg string, err error) {
	if e.Logger != nil {
		e.Logger.Warn(msg, "error", err)
	}
}

// pitchTrack returns the voiced F0 estimates (Hz), one per frame that
// passes the normalized-autocorrelation peak test. Unvoiced frames are
// skipped entirely.
func pitchTrack(signal []float32, sampleRate, frameLen, hop int) []float64 {
	minLag := int(float64(sampleRate) / pitchMaxHz)
	if minLag < 1 {
		minLag = 1
	}
	maxLag := int(float64(sampleRate) / pitchMinHz)
	if maxLag > frameLen-1 {
		maxLag = frameLen - 1
	}
	if maxLag <= minLag {
		return nil
	}

	var f0s []float64
	for _, frame := range frames(signal, frameLen, hop) {
		if len(frame) <= maxLag {
			continue
		}
		mean, std := meanStdF32(frame)
		if std < voicedStdEpsilon {
			continue
		}

		norm := make([]float64, len(frame))
		for i, s := range frame {
			norm[i] = (float64(s) - mean) / std
		}

		corr0 := autocorrAt(norm, 0)
		if corr0 < 1e-9 {
			continue
		}

		bestLag, bestVal := 0, math.Inf(-1)
		for lag := minLag; lag < maxLag; lag++ {
			v := autocorrAt(norm, lag)
			if v > bestVal {
				bestVal = v
				bestLag = lag
			}
		}
		if bestLag > 0 && bestVal/corr0 > pitchPeakRatio {
			f0s = append(f0s, float64(sampleRate)/float64(bestLag))
		}
	}
	return f0s
}

func autocorrAt(x []float64, lag int) float64 {
	var acc float64
	for i := 0; i+lag < len(x); i++ {
		acc += x[i] * x[i+lag]
	}
	return acc
}

// speakingRate counts local maxima of the RMS envelope above half its mean
// and divides by utterance duration. Near-zero duration yields 0.
func speakingRate(rms []float64, sampleCount, sampleRate int) float64 {
	if len(rms) < 3 || sampleRate <= 0 {
		return 0
	}
	mean, _ := meanStd(rms)
	thr := mean * rateThresholdFrac

	peaks := 0
	for i := 1; i < len(rms)-1; i++ {
		if rms[i] > rms[i-1] && rms[i] > rms[i+1] && rms[i] > thr {
			peaks++
		}
	}
	duration := float64(sampleCount) / float64(sampleRate)
	if duration <= minRateDurationS {
		return 0
	}
	return float64(peaks) / duration
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := x - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(xs)))
}

func meanStdF32(xs []float32) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += float64(x)
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := float64(x) - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(xs)))
}
