// Package server assembles the HTTP mux and middleware chain from the
// gateway's configured pipeline services.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sori-ai/sori/pkg/gateway/config"
	"github.com/sori-ai/sori/pkg/gateway/handlers"
	"github.com/sori-ai/sori/pkg/gateway/mw"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	services handlers.Services
	mux      *http.ServeMux
}

func New(cfg config.Config, logger *slog.Logger, services handlers.Services) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if services.Logger == nil {
		services.Logger = logger
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		services: services,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.Handle("/v1/voice", handlers.VoiceHandler{
		Config:   s.cfg,
		Services: s.services,
	})
	s.mux.Handle("/v1/transcribe", handlers.TranscribeHandler{
		Services:     s.services,
		Language:     s.cfg.Language,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})
	s.mux.Handle("/v1/emotion", handlers.EmotionHandler{
		Services:     s.services,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})
	s.mux.Handle("/v1/synthesize", handlers.SynthesizeHandler{
		Services:     s.services,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})
	s.mux.Handle("/v1/pipeline-metrics", handlers.PipelineMetricsHandler{
		Services: s.services,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
