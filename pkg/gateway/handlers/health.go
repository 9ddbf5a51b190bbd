package handlers

import (
	"net/http"
	"strings"

	"github.com/sori-ai/sori/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK        bool     `json:"ok"`
		TTSEngine string   `json:"tts_engine"`
		STTWorker bool     `json:"stt_worker_configured"`
		Issues    []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.TTSEngine {
	case config.TTSEnginePiper, config.TTSEngineTone:
	default:
		issues = append(issues, "invalid tts_engine")
	}
	if h.Config.TTSEngine == config.TTSEnginePiper && strings.TrimSpace(h.Config.PiperModel) == "" {
		issues = append(issues, "tts_engine=piper but no piper model configured")
	}
	if h.Config.SampleRate <= 0 {
		issues = append(issues, "sample_rate must be > 0")
	}
	if h.Config.VADThreshold <= 0 {
		issues = append(issues, "vad_threshold must be > 0")
	}
	if strings.TrimSpace(h.Config.MetricsPath) == "" && strings.TrimSpace(h.Config.MetricsDSN) == "" {
		issues = append(issues, "no metrics store configured")
	}

	resp := readyResp{
		OK:        len(issues) == 0,
		TTSEngine: string(h.Config.TTSEngine),
		STTWorker: strings.TrimSpace(h.Config.STTCommand) != "",
		Issues:    issues,
	}
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
