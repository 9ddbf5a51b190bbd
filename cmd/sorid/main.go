package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sori-ai/sori/internal/dotenv"
	"github.com/sori-ai/sori/pkg/audio"
	"github.com/sori-ai/sori/pkg/emotion"
	"github.com/sori-ai/sori/pkg/gateway/config"
	"github.com/sori-ai/sori/pkg/gateway/handlers"
	gatewayserver "github.com/sori-ai/sori/pkg/gateway/server"
	"github.com/sori-ai/sori/pkg/metrics"
	"github.com/sori-ai/sori/pkg/reply"
	"github.com/sori-ai/sori/pkg/stt"
	"github.com/sori-ai/sori/pkg/tts"
	"github.com/sori-ai/sori/pkg/vad"
)

type serverDeps struct {
	loadConfig    func() (config.Config, error)
	buildServices func(context.Context, config.Config, *slog.Logger) (handlers.Services, func(), error)
	signalNotify  func(chan<- os.Signal, ...os.Signal)
	signalStop    func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig:    config.LoadFromEnv,
		buildServices: buildServices,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildServices wires the full pipeline from configuration. The returned
// cleanup stops the recognizer subprocess and closes the metrics store.
func buildServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (handlers.Services, func(), error) {
	gate := vad.NewEnergyGate()
	gate.Threshold = cfg.VADThreshold
	gate.SampleRate = cfg.SampleRate
	gate.MinSilenceMS = cfg.VADMinSilenceMS

	worker := stt.NewWorker(stt.WorkerConfig{
		Command:      cfg.STTCommand,
		Args:         cfg.STTArgs,
		StartTimeout: cfg.STTStartTimeout,
		CallTimeout:  cfg.STTCallTimeout,
		Language:     cfg.Language,
		Logger:       logger,
	})

	analyzer := emotion.NewAnalyzer(logger, metrics.PitchFallbackTotal.Inc)

	gens := make([]reply.Generator, 0, 3)
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gem, err := reply.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return handlers.Services{}, nil, fmt.Errorf("gemini: %w", err)
		}
		gens = append(gens, gem)
	}
	if strings.TrimSpace(cfg.OllamaModel) != "" {
		gens = append(gens, &reply.OllamaGenerator{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel})
	}
	gens = append(gens, reply.NewTemplateGenerator(0))

	var synth tts.Synthesizer
	switch cfg.TTSEngine {
	case config.TTSEnginePiper:
		synth = &tts.PiperSynthesizer{
			Binary:     cfg.PiperBinary,
			ModelPath:  cfg.PiperModel,
			SampleRate: cfg.SampleRate,
		}
	default:
		synth = &tts.ToneSynthesizer{SampleRate: cfg.SampleRate}
	}

	var store metrics.Store
	var closeStore func()
	if strings.TrimSpace(cfg.MetricsDSN) != "" {
		pg, err := metrics.NewPGStore(ctx, cfg.MetricsDSN)
		if err != nil {
			return handlers.Services{}, nil, fmt.Errorf("metrics store: %w", err)
		}
		store = pg
		closeStore = pg.Close
	} else {
		jl, err := metrics.NewJSONLStore(cfg.MetricsPath)
		if err != nil {
			return handlers.Services{}, nil, fmt.Errorf("metrics store: %w", err)
		}
		store = jl
	}

	cleanup := func() {
		if err := worker.Close(); err != nil {
			logger.Warn("stt worker close", "error", err)
		}
		if closeStore != nil {
			closeStore()
		}
	}

	return handlers.Services{
		VAD:        gate,
		STT:        worker,
		Analyzer:   analyzer,
		Reply:      reply.NewChain(logger, gens...),
		TTS:        synth,
		Transcoder: audio.FFmpegTranscoder{Binary: cfg.FFmpegBinary},
		Metrics:    store,
		Logger:     logger,
	}, cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil || deps.buildServices == nil {
		return errors.New("missing dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	services, cleanup, err := deps.buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	gw := gatewayserver.New(cfg, logger, services)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting server",
		"addr", cfg.Addr,
		"tts_engine", cfg.TTSEngine,
		"stt_configured", strings.TrimSpace(cfg.STTCommand) != "",
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "sorid: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "sorid: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
