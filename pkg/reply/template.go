package reply

import (
	"context"
	"math/rand"
	"sync"

	"github.com/sori-ai/sori/pkg/emotion"
)

// TemplateGenerator answers from curated Korean templates per emotion
// class, picking randomly to avoid repetition. It never fails, so it
// belongs at the end of a Chain.
type TemplateGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTemplateGenerator seeds the picker. seed 0 means non-deterministic.
func NewTemplateGenerator(seed int64) *TemplateGenerator {
	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	}
	return &TemplateGenerator{rng: rng}
}

var templates = map[emotion.Label][]string{
	emotion.Happy: {
		"정말 기분이 좋아 보여요! 저도 덩달아 기분이 밝아지네요.",
		"와, 행복한 에너지가 느껴져요! 좋은 일이 있으셨나 봐요.",
		"그 밝은 기분이 저한테도 전해져요. 오늘 하루도 즐겁게 보내세요!",
		"기쁜 소식인가요? 함께 기뻐할게요!",
	},
	emotion.Excited: {
		"와! 정말 신나 보여요! 무슨 일이에요?",
		"그 흥분된 목소리가 느껴져요! 저도 두근두근하네요.",
		"엄청난 에너지네요! 좋은 일이 생긴 것 같아요.",
		"오, 뭔가 굉장히 기대되는 일이 있나봐요!",
	},
	emotion.Sad: {
		"힘드신가요? 제가 옆에서 들을게요.",
		"많이 지치셨겠어요. 오늘 하루도 수고하셨어요.",
		"그런 감정도 괜찮아요. 잠깐 쉬어가는 것도 좋아요.",
		"마음이 많이 무거워 보여요. 조금이라도 위로가 되길 바라요.",
	},
	emotion.Angry: {
		"많이 답답하고 화나셨겠어요. 충분히 이해해요.",
		"그럴 수 있죠. 잠깐 심호흡 한번 해볼까요?",
		"화가 나는 건 당연해요. 차분하게 이야기해요.",
		"그 감정 충분히 받아들일게요.",
	},
	emotion.Calm: {
		"차분하고 안정적인 느낌이 좋아요.",
		"평온한 목소리네요. 덕분에 저도 마음이 편안해져요.",
		"여유로운 분위기가 전해져요. 좋은 하루 되세요.",
		"안정감이 느껴져요. 오늘 하루도 편안하게 보내세요.",
	},
	emotion.Neutral: {
		"네, 잘 들었어요.",
		"말씀 잘 들었습니다.",
		"알겠어요. 더 이야기해 주세요.",
		"네, 계속 말씀해 주세요.",
	},
}

// Acknowledgement prefixes, prepended when the transcript is non-empty and
// the emotion is strong enough.
var ackPrefixes = map[emotion.Label][]string{
	emotion.Happy:   {"그렇군요! ", "오, 정말요? ", "좋겠어요! "},
	emotion.Excited: {"우와! ", "정말요?! ", "대박이에요! "},
	emotion.Sad:     {"그랬군요... ", "그러셨어요. ", ""},
	emotion.Angry:   {"그렇군요. ", "이해해요. ", ""},
	emotion.Calm:    {"네, ", "그렇군요. ", ""},
	emotion.Neutral: {"", "네. ", ""},
}

const ackIntensityThreshold = 0.4

func (t *TemplateGenerator) Generate(ctx context.Context, req Request) (string, error) {
	label := req.Emotion
	pool, ok := templates[label]
	if !ok {
		label = emotion.Neutral
		pool = templates[label]
	}

	base := pool[t.pick(len(pool))]
	if req.Transcript != "" && req.Intensity > ackIntensityThreshold {
		acks := ackPrefixes[label]
		return acks[t.pick(len(acks))] + base, nil
	}
	return base, nil
}

func (t *TemplateGenerator) pick(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rng != nil {
		return t.rng.Intn(n)
	}
	return rand.Intn(n)
}
