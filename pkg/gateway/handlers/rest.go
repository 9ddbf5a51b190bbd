package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sori-ai/sori/pkg/audio"
	"github.com/sori-ai/sori/pkg/emotion"
	"github.com/sori-ai/sori/pkg/prosody"
	"github.com/sori-ai/sori/pkg/tts"
)

// TranscribeHandler implements POST /v1/transcribe: multipart WAV upload
// in, transcript with segment timestamps out.
type TranscribeHandler struct {
	Services     Services
	Language     string
	MaxBodyBytes int64
}

func (h TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	buf, err := readAudioUpload(r, h.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_audio", fmt.Sprintf("audio decode error: %v", err))
		return
	}
	language := strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		language = h.Language
	}

	start := time.Now()
	result, err := h.Services.STT.Transcribe(r.Context(), buf, language)
	if err != nil {
		writeError(w, http.StatusBadGateway, "stt_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transcript": result.Transcript,
		"segments":   result.Segments,
		"language":   result.Language,
		"latency_ms": float64(time.Since(start).Milliseconds()),
	})
}

// EmotionHandler implements POST /v1/emotion: multipart WAV upload plus an
// optional transcript form field for text fusion.
type EmotionHandler struct {
	Services     Services
	MaxBodyBytes int64
}

func (h EmotionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	buf, err := readAudioUpload(r, h.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_audio", fmt.Sprintf("audio decode error: %v", err))
		return
	}
	transcript := r.FormValue("transcript")

	start := time.Now()
	result := h.Services.Analyzer.Analyze(buf, transcript)

	branches := map[string]any{"audio": result.AudioBranch}
	if result.TextBranch != nil {
		branches["text"] = result.TextBranch
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"emotion_label":    string(result.Label),
		"intensity":        result.Intensity,
		"probabilities":    result.Probabilities,
		"features_summary": result.FeaturesSummary(),
		"branches":         branches,
		"latency_ms":       float64(time.Since(start).Milliseconds()),
	})
}

type synthesizeRequest struct {
	Text         string  `json:"text"`
	EmotionLabel string  `json:"emotion_label"`
	Intensity    float64 `json:"intensity"`
	Speaker      string  `json:"speaker,omitempty"`
	Voice        string  `json:"voice,omitempty"`
	Language     string  `json:"language,omitempty"`
}

// SynthesizeHandler implements POST /v1/synthesize: JSON request in,
// emotion-shaped audio/wav out.
type SynthesizeHandler struct {
	Services     Services
	MaxBodyBytes int64
}

func (h SynthesizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)

	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	label := emotion.Label(req.EmotionLabel)
	if req.EmotionLabel == "" {
		label = emotion.Neutral
	}
	if req.Intensity < 0 || req.Intensity > 1 {
		writeError(w, http.StatusBadRequest, "bad_request", "intensity must be in [0,1]")
		return
	}

	start := time.Now()
	buf, err := h.Services.TTS.Synthesize(r.Context(), req.Text, tts.Options{
		Voice:    req.Voice,
		Speaker:  req.Speaker,
		Language: req.Language,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tts_failed", err.Error())
		return
	}
	shaped := prosody.Apply(h.Services.Logger, buf, label, req.Intensity)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Latency-Ms", fmt.Sprintf("%.1f", float64(time.Since(start).Microseconds())/1000))
	w.Header().Set("X-Emotion", string(label))
	w.Header().Set("X-Intensity", fmt.Sprintf("%g", req.Intensity))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.EncodeWAV(shaped))
}

// PipelineMetricsHandler implements GET /v1/pipeline-metrics: stored
// per-utterance latency history plus aggregate stats.
type PipelineMetricsHandler struct {
	Services Services
}

func (h PipelineMetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if h.Services.Metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "metrics store is not configured")
		return
	}
	history, err := h.Services.Metrics.History()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "metrics_failed", err.Error())
		return
	}
	stats, err := h.Services.Metrics.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "metrics_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"stats":   stats,
	})
}
