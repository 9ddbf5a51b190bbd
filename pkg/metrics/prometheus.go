package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sori",
		Name:      "pipeline_stage_seconds",
		Help:      "Per-stage processing latency.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	rtfGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sori",
		Name:      "pipeline_rtf",
		Help:      "Real-time factor of the most recent utterance.",
	})

	utterancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sori",
		Name:      "utterances_total",
		Help:      "Utterances processed end to end.",
	})

	// PitchFallbackTotal counts clips where no voiced frames were found and
	// the default pitch statistics were substituted. A rising rate usually
	// means silent or non-speech audio is reaching the feature extractor.
	PitchFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sori",
		Name:      "pitch_fallback_total",
		Help:      "Clips that used the default pitch statistics.",
	})
)

// Observe feeds one finished record into the Prometheus collectors.
func Observe(rec Pipeline) {
	stageSeconds.WithLabelValues("vad").Observe(rec.VADDetectMS / 1000)
	stageSeconds.WithLabelValues("stt").Observe(rec.STTMS / 1000)
	stageSeconds.WithLabelValues("emotion").Observe(rec.EmotionMS / 1000)
	stageSeconds.WithLabelValues("tts").Observe(rec.TTSMS / 1000)
	stageSeconds.WithLabelValues("total").Observe(rec.TotalMS / 1000)
	if rtf := rec.RTF(); rtf > 0 {
		rtfGauge.Set(rtf)
	}
	utterancesTotal.Inc()
}
