// Package metrics tracks per-utterance pipeline latency and persists
// records for later analysis. Records flow through a Store; the JSONL
// store is the default and the Postgres store is the durable option.
// Prometheus collectors expose the same timings for scraping.
package metrics

import (
	"fmt"
	"log/slog"
	"time"
)

// Pipeline is one utterance's latency record. Durations are milliseconds.
type Pipeline struct {
	SessionID       string  `json:"session_id"`
	UtteranceID     string  `json:"utterance_id,omitempty"`
	AudioDurationMS float64 `json:"audio_duration_ms"`
	VADDetectMS     float64 `json:"vad_detect_ms"`
	STTMS           float64 `json:"stt_ms"`
	EmotionMS       float64 `json:"emotion_ms"`
	TTSMS           float64 `json:"tts_ms"`
	TotalMS         float64 `json:"total_ms"`
	Timestamp       string  `json:"timestamp"`
}

// ProcessingMS is the sum of the four stage timings.
func (p Pipeline) ProcessingMS() float64 {
	return p.VADDetectMS + p.STTMS + p.EmotionMS + p.TTSMS
}

// RTF is the real-time factor, processing time over audio duration. Lower
// is better; zero when the audio duration is unknown.
func (p Pipeline) RTF() float64 {
	if p.AudioDurationMS <= 0 {
		return 0
	}
	return p.ProcessingMS() / p.AudioDurationMS
}

// Summary is the one-line form used in logs.
func (p Pipeline) Summary() string {
	return fmt.Sprintf("total=%.0fms [vad=%.0f stt=%.0f emotion=%.0f tts=%.0f] RTF=%.2f",
		p.TotalMS, p.VADDetectMS, p.STTMS, p.EmotionMS, p.TTSMS, p.RTF())
}

// StageStats aggregates one latency field across stored records.
type StageStats struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Store persists pipeline records. Append failures are logged by callers
// and never abort an utterance.
type Store interface {
	Append(rec Pipeline) error
	// History returns stored records, oldest first.
	History() ([]Pipeline, error)
	// Stats aggregates the stage timings over all stored records.
	Stats() (map[string]StageStats, error)
}

// Tracker accumulates stage timings for a single utterance. Not
// goroutine-safe; each utterance gets its own tracker.
type Tracker struct {
	rec       Pipeline
	wallStart time.Time
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewTracker starts timing an utterance. store may be nil when persistence
// is disabled.
func NewTracker(sessionID, utteranceID string, store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		rec:    Pipeline{SessionID: sessionID, UtteranceID: utteranceID},
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	t.wallStart = t.now()
	return t
}

func (t *Tracker) RecordAudioDuration(d time.Duration) { t.rec.AudioDurationMS = toMS(d) }
func (t *Tracker) RecordVAD(d time.Duration)           { t.rec.VADDetectMS = toMS(d) }
func (t *Tracker) RecordSTT(d time.Duration)           { t.rec.STTMS = toMS(d) }
func (t *Tracker) RecordEmotion(d time.Duration)       { t.rec.EmotionMS = toMS(d) }
func (t *Tracker) RecordTTS(d time.Duration)           { t.rec.TTSMS = toMS(d) }

// Finish stamps the total wall time, persists the record, and returns it.
// Persistence failure is logged, not returned.
func (t *Tracker) Finish() Pipeline {
	t.rec.TotalMS = toMS(t.now().Sub(t.wallStart))
	t.rec.Timestamp = t.now().Format("2006-01-02T15:04:05")
	Observe(t.rec)
	if t.store != nil {
		if err := t.store.Append(t.rec); err != nil {
			t.logger.Warn("metrics append failed", "err", err)
		}
	}
	return t.rec
}

func toMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// statFields are the record fields Stats aggregates, keyed by JSON name.
var statFields = map[string]func(Pipeline) float64{
	"vad_detect_ms": func(p Pipeline) float64 { return p.VADDetectMS },
	"stt_ms":        func(p Pipeline) float64 { return p.STTMS },
	"emotion_ms":    func(p Pipeline) float64 { return p.EmotionMS },
	"tts_ms":        func(p Pipeline) float64 { return p.TTSMS },
	"total_ms":      func(p Pipeline) float64 { return p.TotalMS },
}

// aggregate computes StageStats for each stat field over recs.
func aggregate(recs []Pipeline) map[string]StageStats {
	out := make(map[string]StageStats, len(statFields))
	if len(recs) == 0 {
		return out
	}
	for name, get := range statFields {
		s := StageStats{N: len(recs), Min: get(recs[0]), Max: get(recs[0])}
		var sum float64
		for _, r := range recs {
			v := get(r)
			sum += v
			if v < s.Min {
				s.Min = v
			}
			if v > s.Max {
				s.Max = v
			}
		}
		s.Mean = round1(sum / float64(s.N))
		s.Min = round1(s.Min)
		s.Max = round1(s.Max)
		out[name] = s
	}
	return out
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
