package emotion

import (
	"strings"

	"github.com/sori-ai/sori/pkg/dsp"
)

// neutralBaseline keeps neutral reachable without letting it dominate.
const neutralBaseline = 0.10

// Feature ranges for 16 kHz mono speech, for reading the rules below:
//   f0 mean  ~80-300 Hz, f0 std ~10-80 Hz
//   rms mean ~0.01-0.15, zcr mean ~0.05-0.25
//   speaking rate ~1-8 onsets/sec

// ClassifyAudio maps prosody features to an emotion distribution with an
// additive rule set; multiple rules can fire. An unreliable pitch estimate
// (below 50 Hz, meaning no voiced frame was found) is replaced with the
// neutral default so energy and rate still drive the result.
func ClassifyAudio(f dsp.FeatureSet) Distribution {
	probs := NewDistribution()
	probs[Neutral] = neutralBaseline

	f0Mean := f.F0Mean
	f0Std := f.F0Std
	if f0Mean <= 50.0 {
		f0Mean = 150.0
		f0Std = 25.0
	}
	rms := f.RMSMean
	zcr := f.ZCRMean
	rate := f.SpeakingRate

	switch {
	case f0Mean > 185 && rms > 0.06 && rate > 3.5:
		// High pitch + energy + fast rate.
		probs[Excited] += 0.55
		probs[Happy] += 0.20
	case f0Mean > 155 && rms > 0.04:
		// Moderately high pitch + moderate energy.
		probs[Happy] += 0.45
		probs[Excited] += 0.10
	}

	if rms > 0.07 && (zcr > 0.12 || f0Std > 35) {
		probs[Angry] += 0.50
	}
	if f0Mean < 140 && rms < 0.05 && rate < 3.0 {
		probs[Sad] += 0.45
	}
	if rms < 0.06 && f0Std < 28 && rate > 2.0 && rate < 4.5 {
		probs[Calm] += 0.35
	}
	if rms < 0.03 {
		probs[Calm] += 0.25
	}
	if rate > 4.5 && rms > 0.05 {
		probs[Excited] += 0.20
		probs[Happy] += 0.10
	}

	return probs.Normalize()
}

// textLexicon is the bilingual (KO/EN) keyword table for the text branch.
var textLexicon = map[Label][]string{
	Happy: {
		"기뻐", "기쁘", "좋아", "행복", "감사", "웃", "즐거", "신나", "사랑",
		"happy", "joy", "great", "wonderful", "love", "glad", "cheerful",
	},
	Sad: {
		"슬프", "우울", "힘들", "외로", "눈물", "그리워", "괴로", "아프",
		"sad", "cry", "miss", "lonely", "depressed", "sorrow", "grief",
	},
	Angry: {
		"화나", "짜증", "열받", "싫어", "분노", "억울", "황당",
		"angry", "hate", "mad", "furious", "frustrated", "annoyed", "upset",
	},
	Excited: {
		"흥분", "설레", "두근", "기대", "와우", "대박", "놀라",
		"excited", "wow", "amazing", "awesome", "thrilled", "incredible",
	},
	Calm: {
		"평온", "차분", "괜찮", "안정", "편안", "조용",
		"calm", "peace", "relax", "okay", "fine", "quiet", "serene",
	},
}

// ClassifyText scores case-insensitive keyword occurrences over the
// bilingual lexicon; each hit adds one unit of weight. Text with no hits
// falls back to the neutral baseline.
func ClassifyText(text string) Distribution {
	probs := NewDistribution()
	probs[Neutral] = neutralBaseline

	lower := strings.ToLower(text)
	for label, keywords := range textLexicon {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				probs[label] += 1.0
			}
		}
	}
	return probs.Normalize()
}
