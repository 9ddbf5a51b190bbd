// Package handlers implements the gateway's HTTP endpoints: health
// probes, the live voice websocket, and the REST pipeline surface.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/sori-ai/sori/pkg/audio"
	"github.com/sori-ai/sori/pkg/emotion"
	"github.com/sori-ai/sori/pkg/gateway/live/session"
	"github.com/sori-ai/sori/pkg/metrics"
	"github.com/sori-ai/sori/pkg/reply"
	"github.com/sori-ai/sori/pkg/tts"
	"github.com/sori-ai/sori/pkg/vad"
)

// Services bundles the pipeline components the handlers share.
type Services struct {
	VAD        vad.Gate
	STT        session.Transcriber
	Analyzer   *emotion.Analyzer
	Reply      reply.Generator
	TTS        tts.Synthesizer
	Transcoder audio.Transcoder
	Metrics    metrics.Store
	Logger     *slog.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

// readAudioUpload pulls the "file" part out of a multipart request and
// decodes it as WAV.
func readAudioUpload(r *http.Request, maxBytes int64) (audio.Buffer, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return audio.Buffer{}, err
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return audio.Buffer{}, err
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return audio.Buffer{}, err
	}
	return audio.DecodeWAV(raw)
}
