// Package config loads the gateway's runtime settings from SORI_*
// environment variables and validates them at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type TTSEngine string

const (
	TTSEnginePiper TTSEngine = "piper"
	TTSEngineTone  TTSEngine = "tone"
)

type Config struct {
	Addr string

	// Pipeline defaults.
	Language   string
	Voice      string
	SampleRate int

	// STT worker subprocess.
	STTCommand      string
	STTArgs         []string
	STTStartTimeout time.Duration
	STTCallTimeout  time.Duration

	// TTS.
	TTSEngine   TTSEngine
	PiperBinary string
	PiperModel  string

	// Reply generation. Empty keys disable the corresponding generator.
	GeminiAPIKey string
	GeminiModel  string
	OllamaURL    string
	OllamaModel  string

	// VAD energy gate.
	VADThreshold    float64
	VADMinSilenceMS int

	// Metrics persistence. The DSN, when set, switches to Postgres.
	MetricsPath string
	MetricsDSN  string

	// WebM chunk decoding.
	FFmpegBinary string

	// CORS. Empty means disabled.
	CORSAllowedOrigins map[string]struct{}

	// Live websocket sessions.
	WSMaxJSONMessageBytes int64
	WSMaxBufferedSeconds  int
	WSPingInterval        time.Duration
	WSWriteTimeout        time.Duration
	WSReadTimeout         time.Duration
	WSMaxSessionDuration  time.Duration
	FinalizeTimeout       time.Duration

	// Operational defaults.
	MaxBodyBytes        int64
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("SORI_ADDR", ":8080"),
		Language:              envOr("SORI_LANGUAGE", "ko"),
		Voice:                 envOr("SORI_VOICE", ""),
		SampleRate:            envIntOr("SORI_SAMPLE_RATE", 16000),
		STTCommand:            envOr("SORI_STT_COMMAND", ""),
		STTArgs:               splitCSV(os.Getenv("SORI_STT_ARGS")),
		STTStartTimeout:       envDurationOr("SORI_STT_START_TIMEOUT", 60*time.Second),
		STTCallTimeout:        envDurationOr("SORI_STT_CALL_TIMEOUT", 30*time.Second),
		TTSEngine:             TTSEngine(envOr("SORI_TTS_ENGINE", string(TTSEngineTone))),
		PiperBinary:           envOr("SORI_PIPER_BINARY", "piper"),
		PiperModel:            envOr("SORI_PIPER_MODEL", ""),
		GeminiAPIKey:          envOr("SORI_GEMINI_API_KEY", ""),
		GeminiModel:           envOr("SORI_GEMINI_MODEL", "gemini-2.0-flash"),
		OllamaURL:             envOr("SORI_OLLAMA_URL", ""),
		OllamaModel:           envOr("SORI_OLLAMA_MODEL", ""),
		VADThreshold:          envFloat64Or("SORI_VAD_THRESHOLD", 0.02),
		VADMinSilenceMS:       envIntOr("SORI_VAD_MIN_SILENCE_MS", 500),
		MetricsPath:           envOr("SORI_METRICS_PATH", "logs/metrics.jsonl"),
		MetricsDSN:            envOr("SORI_METRICS_DSN", ""),
		FFmpegBinary:          envOr("SORI_FFMPEG_BINARY", "ffmpeg"),
		CORSAllowedOrigins:    make(map[string]struct{}),
		WSMaxJSONMessageBytes: envInt64Or("SORI_WS_MAX_JSON_MESSAGE_BYTES", 4<<20),
		WSMaxBufferedSeconds:  envIntOr("SORI_WS_MAX_BUFFERED_SECONDS", 60),
		WSPingInterval:        envDurationOr("SORI_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:        envDurationOr("SORI_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:         envDurationOr("SORI_WS_READ_TIMEOUT", 0),
		WSMaxSessionDuration:  envDurationOr("SORI_WS_MAX_DURATION", 2*time.Hour),
		FinalizeTimeout:       envDurationOr("SORI_FINALIZE_TIMEOUT", 2*time.Minute),
		MaxBodyBytes:          envInt64Or("SORI_MAX_BODY_BYTES", 32<<20),
		ReadHeaderTimeout:     envDurationOr("SORI_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:           envDurationOr("SORI_READ_TIMEOUT", 5*time.Minute),
		ShutdownGracePeriod:   envDurationOr("SORI_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("SORI_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.TTSEngine {
	case TTSEnginePiper, TTSEngineTone:
	default:
		return Config{}, fmt.Errorf("SORI_TTS_ENGINE must be one of piper|tone")
	}
	if cfg.TTSEngine == TTSEnginePiper && strings.TrimSpace(cfg.PiperModel) == "" {
		return Config{}, fmt.Errorf("SORI_PIPER_MODEL must be set when SORI_TTS_ENGINE=piper")
	}
	if strings.TrimSpace(cfg.Language) == "" {
		return Config{}, fmt.Errorf("SORI_LANGUAGE must not be empty")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("SORI_SAMPLE_RATE must be > 0")
	}
	if cfg.STTStartTimeout <= 0 {
		return Config{}, fmt.Errorf("SORI_STT_START_TIMEOUT must be > 0")
	}
	if cfg.STTCallTimeout <= 0 {
		return Config{}, fmt.Errorf("SORI_STT_CALL_TIMEOUT must be > 0")
	}
	if cfg.VADThreshold <= 0 {
		return Config{}, fmt.Errorf("SORI_VAD_THRESHOLD must be > 0")
	}
	if cfg.VADMinSilenceMS <= 0 {
		return Config{}, fmt.Errorf("SORI_VAD_MIN_SILENCE_MS must be > 0")
	}
	if strings.TrimSpace(cfg.MetricsPath) == "" && strings.TrimSpace(cfg.MetricsDSN) == "" {
		return Config{}, fmt.Errorf("one of SORI_METRICS_PATH or SORI_METRICS_DSN must be set")
	}
	if cfg.WSMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("SORI_WS_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSMaxBufferedSeconds <= 0 {
		return Config{}, fmt.Errorf("SORI_WS_MAX_BUFFERED_SECONDS must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("SORI_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SORI_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("SORI_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("SORI_WS_MAX_DURATION must be > 0")
	}
	if cfg.FinalizeTimeout <= 0 {
		return Config{}, fmt.Errorf("SORI_FINALIZE_TIMEOUT must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("SORI_MAX_BODY_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SORI_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("SORI_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SORI_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
