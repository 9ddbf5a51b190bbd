package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sori-ai/sori/pkg/gateway/config"
	"github.com/sori-ai/sori/pkg/gateway/live/session"
	"github.com/sori-ai/sori/pkg/gateway/mw"
)

// VoiceHandler upgrades /v1/voice to a websocket and runs a live session
// over it.
type VoiceHandler struct {
	Config   config.Config
	Services Services
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if !h.originAllowed(r) {
		writeError(w, http.StatusForbidden, "forbidden", "origin is not allowed")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()[:8]
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Services.Logger
	logger.Info("live session connected", "session_id", sessionID, "request_id", reqID)

	s, err := session.New(session.Deps{
		Conn:       conn,
		Logger:     logger,
		VAD:        h.Services.VAD,
		STT:        h.Services.STT,
		Analyzer:   h.Services.Analyzer,
		Reply:      h.Services.Reply,
		TTS:        h.Services.TTS,
		Transcoder: h.Services.Transcoder,
		Metrics:    h.Services.Metrics,
		SessionID:  sessionID,
		Config: session.Config{
			Language:            h.Config.Language,
			Voice:               h.Config.Voice,
			MaxJSONMessageBytes: h.Config.WSMaxJSONMessageBytes,
			MaxBufferedSamples:  h.Config.WSMaxBufferedSeconds * h.Config.SampleRate,
			TargetSampleRate:    h.Config.SampleRate,
			PingInterval:        h.Config.WSPingInterval,
			WriteTimeout:        h.Config.WSWriteTimeout,
			ReadTimeout:         h.Config.WSReadTimeout,
			MaxSessionDuration:  h.Config.WSMaxSessionDuration,
			FinalizeTimeout:     h.Config.FinalizeTimeout,
		},
	})
	if err != nil {
		logger.Error("live session init failed", "session_id", sessionID, "err", err)
		return
	}

	if err := s.Run(); err != nil {
		logger.Info("live session ended", "session_id", sessionID, "err", err)
		return
	}
	logger.Info("live session disconnected", "session_id", sessionID)
}

// originAllowed mirrors the CORS allowlist for websocket upgrades, which
// browsers do not preflight.
func (h VoiceHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}
