package emotion

import (
	"log/slog"
	"math"
	"strings"

	"github.com/sori-ai/sori/pkg/audio"
	"github.com/sori-ai/sori/pkg/dsp"
)

// Default branch weights for audio/text fusion.
const (
	DefaultAudioWeight = 0.6
	DefaultTextWeight  = 0.4
)

// Result is the final classification for one utterance.
type Result struct {
	Label         Label
	Intensity     float64
	Probabilities Distribution

	// Branches kept for explainability; TextBranch is nil for audio-only
	// classification.
	AudioBranch Distribution
	TextBranch  Distribution

	Features dsp.FeatureSet
}

// FeaturesSummary returns the rounded scalar features reported alongside
// the emotion frame.
func (r Result) FeaturesSummary() map[string]float64 {
	return map[string]float64{
		"f0_mean":       round(r.Features.F0Mean, 2),
		"f0_std":        round(r.Features.F0Std, 2),
		"rms_mean":      round(r.Features.RMSMean, 4),
		"zcr_mean":      round(r.Features.ZCRMean, 4),
		"speaking_rate": round(r.Features.SpeakingRate, 2),
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Analyzer runs feature extraction, both classifier branches, and fusion.
// Stateless after construction; safe for concurrent use.
type Analyzer struct {
	extractor   *dsp.Extractor
	audioWeight float64
	textWeight  float64
}

// NewAnalyzer builds an analyzer with the default fusion weights.
// onPitchFallback, if non-nil, is called whenever pitch detection falls
// back to the neutral default.
func NewAnalyzer(logger *slog.Logger, onPitchFallback func()) *Analyzer {
	return &Analyzer{
		extractor: &dsp.Extractor{
			Logger:          logger,
			OnPitchFallback: onPitchFallback,
		},
		audioWeight: DefaultAudioWeight,
		textWeight:  DefaultTextWeight,
	}
}

// SetWeights overrides the fusion weights.
func (a *Analyzer) SetWeights(audioW, textW float64) {
	a.audioWeight = audioW
	a.textWeight = textW
}

// Fuse combines the audio and text branches with a weighted sum and
// renormalizes. A nil text branch returns the audio branch unchanged
// (audio-only classification is already normalized).
func (a *Analyzer) Fuse(audioDist, textDist Distribution) Distribution {
	if textDist == nil {
		return audioDist
	}
	fused := NewDistribution()
	for _, l := range Labels {
		fused[l] = a.audioWeight*audioDist[l] + a.textWeight*textDist[l]
	}
	return fused.Normalize()
}

// Analyze classifies one utterance: extract features, run the audio branch,
// run the text branch when transcript is non-blank, fuse, and resolve the
// winning label and intensity.
func (a *Analyzer) Analyze(buf audio.Buffer, transcript string) Result {
	features := a.extractor.Extract(buf)
	audioDist := ClassifyAudio(features)

	var textDist Distribution
	if strings.TrimSpace(transcript) != "" {
		textDist = ClassifyText(transcript)
	}

	fused := a.Fuse(audioDist, textDist)
	label, intensity := fused.Best()

	return Result{
		Label:         label,
		Intensity:     intensity,
		Probabilities: fused,
		AudioBranch:   audioDist,
		TextBranch:    textDist,
		Features:      features,
	}
}
