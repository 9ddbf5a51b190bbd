package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr=%q, want :8080", cfg.Addr)
	}
	if cfg.Language != "ko" {
		t.Errorf("Language=%q, want ko", cfg.Language)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate=%d, want 16000", cfg.SampleRate)
	}
	if cfg.TTSEngine != TTSEngineTone {
		t.Errorf("TTSEngine=%q, want tone", cfg.TTSEngine)
	}
	if cfg.STTStartTimeout != 60*time.Second {
		t.Errorf("STTStartTimeout=%v, want 60s", cfg.STTStartTimeout)
	}
	if cfg.VADThreshold != 0.02 {
		t.Errorf("VADThreshold=%v, want 0.02", cfg.VADThreshold)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins=%v, want empty", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SORI_ADDR", ":9000")
	t.Setenv("SORI_LANGUAGE", "en")
	t.Setenv("SORI_STT_COMMAND", "python3")
	t.Setenv("SORI_STT_ARGS", "workers/stt_worker.py,--model,small")
	t.Setenv("SORI_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SORI_VAD_THRESHOLD", "0.05")
	t.Setenv("SORI_WS_PING_INTERVAL", "45s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr=%q", cfg.Addr)
	}
	if cfg.Language != "en" {
		t.Errorf("Language=%q", cfg.Language)
	}
	if len(cfg.STTArgs) != 3 || cfg.STTArgs[2] != "small" {
		t.Errorf("STTArgs=%v", cfg.STTArgs)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://b.example"]; !ok {
		t.Errorf("CORSAllowedOrigins=%v, missing b.example", cfg.CORSAllowedOrigins)
	}
	if cfg.VADThreshold != 0.05 {
		t.Errorf("VADThreshold=%v", cfg.VADThreshold)
	}
	if cfg.WSPingInterval != 45*time.Second {
		t.Errorf("WSPingInterval=%v", cfg.WSPingInterval)
	}
}

func TestLoadFromEnvRejectsBadTTSEngine(t *testing.T) {
	t.Setenv("SORI_TTS_ENGINE", "festival")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for unknown tts engine")
	}
}

func TestLoadFromEnvPiperRequiresModel(t *testing.T) {
	t.Setenv("SORI_TTS_ENGINE", "piper")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error when piper model is unset")
	}
	t.Setenv("SORI_PIPER_MODEL", "/models/ko_KR-bora-medium.onnx")
	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
}

func TestLoadFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SORI_SAMPLE_RATE", "not-a-number")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate=%d, want default 16000", cfg.SampleRate)
	}
}
