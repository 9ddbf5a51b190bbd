package tts

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/sori-ai/sori/pkg/audio"
)

// ToneSynthesizer generates placeholder audio without any voice model: one
// short enveloped tone per word, pitched by a hash of the word. Output is
// deterministic for a given text, which the pipeline tests rely on.
type ToneSynthesizer struct {
	// SampleRate of generated audio. Defaults to audio.DefaultSampleRate.
	SampleRate int
}

const (
	toneWordDur = 0.18
	toneGapDur  = 0.06
	toneBase    = 160.0
	toneSpan    = 120.0
)

func (t *ToneSynthesizer) Synthesize(ctx context.Context, text string, opts Options) (audio.Buffer, error) {
	sr := t.SampleRate
	if sr <= 0 {
		sr = audio.DefaultSampleRate
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if len(words) == 0 {
		words = []string{""}
	}

	wordLen := int(toneWordDur * float64(sr))
	gapLen := int(toneGapDur * float64(sr))
	samples := make([]float32, 0, len(words)*(wordLen+gapLen))

	for i, w := range words {
		if i > 0 {
			samples = append(samples, make([]float32, gapLen)...)
		}
		freq := toneBase + toneSpan*wordPitch(w)
		for n := 0; n < wordLen; n++ {
			env := math.Sin(math.Pi * float64(n) / float64(wordLen))
			v := 0.25 * env * math.Sin(2*math.Pi*freq*float64(n)/float64(sr))
			samples = append(samples, float32(v))
		}
	}
	return audio.New(samples, sr), nil
}

// wordPitch maps a word onto [0,1) via a small rolling hash.
func wordPitch(w string) float64 {
	var h uint32 = 2166136261
	for _, r := range w {
		h ^= uint32(r)
		h *= 16777619
	}
	return float64(h%1000) / 1000
}
