// Package prosody post-processes synthesized speech to express a target
// emotion: time-stretch, pitch-shift, and energy scaling, each interpolated
// toward a fixed per-label target by the emotion intensity. Shaping is
// best-effort and never fails the synthesis that produced the input.
package prosody

import (
	"log/slog"
	"math"

	"github.com/sori-ai/sori/pkg/audio"
	"github.com/sori-ai/sori/pkg/emotion"
)

// Params is the prosody target for one emotion label. Rate and Energy are
// multiplicative (1.0 = unchanged); PitchSemitones is additive (0 =
// unchanged).
type Params struct {
	Rate           float64
	PitchSemitones float64
	Energy         float64
}

// targets maps each label to its prosody triple; neutral is the identity.
var targets = map[emotion.Label]Params{
	emotion.Neutral: {Rate: 1.00, PitchSemitones: 0.0, Energy: 1.00},
	emotion.Happy:   {Rate: 1.10, PitchSemitones: 2.0, Energy: 1.20},
	emotion.Sad:     {Rate: 0.85, PitchSemitones: -3.0, Energy: 0.80},
	emotion.Angry:   {Rate: 1.15, PitchSemitones: 1.0, Energy: 1.40},
	emotion.Excited: {Rate: 1.20, PitchSemitones: 4.0, Energy: 1.30},
	emotion.Calm:    {Rate: 0.90, PitchSemitones: -1.0, Energy: 0.90},
}

// Dead-bands below which a stage is skipped; near-identity resampling only
// adds artifacts.
const (
	rateDeadBand   = 0.02
	pitchDeadBand  = 0.1
	energyDeadBand = 0.01

	// Rational approximation denominator for resample ratios.
	ratioDenominator = 200
)

// Lookup returns the target triple for label, falling back to neutral for
// unknown labels.
func Lookup(label emotion.Label) Params {
	if p, ok := targets[label]; ok {
		return p
	}
	return targets[emotion.Neutral]
}

// Interpolate scales the target triple by intensity in [0,1]:
// multiplicative parameters move from 1.0 toward the target, the additive
// pitch parameter scales linearly.
func Interpolate(target Params, intensity float64) Params {
	if intensity < 0 {
		intensity = 0
	} else if intensity > 1 {
		intensity = 1
	}
	return Params{
		Rate:           1.0 + (target.Rate-1.0)*intensity,
		PitchSemitones: target.PitchSemitones * intensity,
		Energy:         1.0 + (target.Energy-1.0)*intensity,
	}
}

// Apply shapes buf toward the emotion's prosody target. Each stage failure
// is logged and the audio from before that stage returned unchanged.
func Apply(logger *slog.Logger, buf audio.Buffer, label emotion.Label, intensity float64) audio.Buffer {
	p := Interpolate(Lookup(label), intensity)

	out := buf
	if stretched, ok := timeStretch(out.Samples, p.Rate); ok {
		out = audio.Buffer{Samples: stretched, SampleRate: out.SampleRate}
	} else if math.Abs(p.Rate-1.0) > rateDeadBand && logger != nil {
		logger.Warn("prosody time-stretch skipped", "rate", p.Rate)
	}

	if shifted, ok := pitchShift(out.Samples, p.PitchSemitones); ok {
		out = audio.Buffer{Samples: shifted, SampleRate: out.SampleRate}
	} else if math.Abs(p.PitchSemitones) > pitchDeadBand && logger != nil {
		logger.Warn("prosody pitch-shift skipped", "semitones", p.PitchSemitones)
	}

	if math.Abs(p.Energy-1.0) > energyDeadBand {
		scaled := make([]float32, len(out.Samples))
		for i, s := range out.Samples {
			scaled[i] = s * float32(p.Energy)
		}
		out = audio.Buffer{Samples: scaled, SampleRate: out.SampleRate}.Clip()
	}
	return out
}

// timeStretch resamples by the rate approximated as a rational fraction
// with denominator ratioDenominator. Returns ok=false when skipped or
// degenerate.
func timeStretch(samples []float32, rate float64) ([]float32, bool) {
	if math.Abs(rate-1.0) <= rateDeadBand || len(samples) == 0 {
		return nil, false
	}
	numer := int(math.Round(rate * ratioDenominator))
	if numer < 1 {
		numer = 1
	}
	// rate speeds playback up, so the sample count shrinks by 1/rate.
	out := audio.ResampleRatio(samples, ratioDenominator, numer)
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// pitchShift resamples by the equal-tempered ratio 2^(semitones/12), then
// resamples back to the original sample count so duration is preserved.
func pitchShift(samples []float32, semitones float64) ([]float32, bool) {
	if math.Abs(semitones) <= pitchDeadBand || len(samples) == 0 {
		return nil, false
	}
	factor := math.Pow(2, semitones/12.0)
	numer := int(math.Round(factor * ratioDenominator))
	if numer < 1 {
		numer = 1
	}
	shifted := audio.ResampleRatio(samples, numer, ratioDenominator)
	if len(shifted) == 0 {
		return nil, false
	}
	restored := audio.ResampleToLength(shifted, len(samples))
	if len(restored) == 0 {
		return nil, false
	}
	return restored, true
}
