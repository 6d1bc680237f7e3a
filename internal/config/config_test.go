package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ELEVENLABS_API_KEY", "xi-key")
	t.Setenv("ELEVENLABS_AGENT_ID", "agent-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ElevenLabsOutputFormat != "ulaw_8000" {
		t.Fatalf("ElevenLabsOutputFormat = %q, want %q", cfg.ElevenLabsOutputFormat, "ulaw_8000")
	}
	if cfg.OptimizeStreamingLatency != 3 {
		t.Fatalf("OptimizeStreamingLatency = %d, want 3", cfg.OptimizeStreamingLatency)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.FFmpegPath != "" {
		t.Fatalf("FFmpegPath = %q, want empty default", cfg.FFmpegPath)
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ELEVENLABS_AGENT_ID", "agent-1")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() without ELEVENLABS_API_KEY succeeded, want error")
	}

	t.Setenv("ELEVENLABS_API_KEY", "xi-key")
	t.Setenv("ELEVENLABS_AGENT_ID", "")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() without ELEVENLABS_AGENT_ID succeeded, want error")
	}
}

func TestLoadRejectsOutOfRangeLatency(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ELEVENLABS_API_KEY", "xi-key")
	t.Setenv("ELEVENLABS_AGENT_ID", "agent-1")
	t.Setenv("ELEVENLABS_OPTIMIZE_STREAMING_LATENCY", "9")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() with latency 9 succeeded, want error")
	}
}

func TestLoadParsesExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ELEVENLABS_API_KEY", "  xi-key \n")
	t.Setenv("ELEVENLABS_AGENT_ID", "agent-1")
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("ELEVENLABS_OUTPUT_FORMAT", "pcm_16000")
	t.Setenv("FFMPEG_PATH", "/usr/bin/ffmpeg")
	t.Setenv("ELEVENLABS_WS_HANDSHAKE_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ElevenLabsAPIKey != "xi-key" {
		t.Fatalf("ElevenLabsAPIKey = %q, want trimmed %q", cfg.ElevenLabsAPIKey, "xi-key")
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ElevenLabsOutputFormat != "pcm_16000" {
		t.Fatalf("ElevenLabsOutputFormat = %q, want %q", cfg.ElevenLabsOutputFormat, "pcm_16000")
	}
	if cfg.ElevenLabsHandshakeTimeout != 5*time.Second {
		t.Fatalf("ElevenLabsHandshakeTimeout = %v, want 5s", cfg.ElevenLabsHandshakeTimeout)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_PUBLIC_HOST",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_AGENT_ID",
		"ELEVENLABS_API_BASE_URL",
		"ELEVENLABS_WS_HANDSHAKE_TIMEOUT",
		"ELEVENLABS_OUTPUT_FORMAT",
		"ELEVENLABS_OPTIMIZE_STREAMING_LATENCY",
		"AGENT_PROMPT",
		"AGENT_FIRST_MESSAGE",
		"FFMPEG_PATH",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
