package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call bridge service.
type Config struct {
	BindAddr         string
	PublicHost       string
	ShutdownTimeout  time.Duration
	LogLevel         string
	LogFormat        string
	MetricsNamespace string

	AllowAnyOrigin bool

	ElevenLabsAPIKey           string
	ElevenLabsAgentID          string
	ElevenLabsAPIBaseURL       string
	ElevenLabsHandshakeTimeout time.Duration
	ElevenLabsOutputFormat     string
	OptimizeStreamingLatency   int

	AgentPrompt       string
	AgentFirstMessage string

	// FFmpegPath selects the external transcoder. Empty means transcode
	// in-process for pcm output formats and passthrough for ulaw_8000.
	FFmpegPath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		PublicHost:           stringsTrimSpace("APP_PUBLIC_HOST"),
		LogLevel:             envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("APP_LOG_FORMAT", "text"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "callbridge"),
		AllowAnyOrigin:       false,
		ElevenLabsAPIKey:     stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsAgentID:    stringsTrimSpace("ELEVENLABS_AGENT_ID"),
		ElevenLabsAPIBaseURL: envOrDefault("ELEVENLABS_API_BASE_URL", "https://api.elevenlabs.io"),
		// Twilio media streams speak 8kHz mu-law; asking ElevenLabs for the
		// same format keeps the hot path free of transcoding.
		ElevenLabsOutputFormat:     envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "ulaw_8000"),
		AgentPrompt:                stringsTrimSpace("AGENT_PROMPT"),
		AgentFirstMessage:          stringsTrimSpace("AGENT_FIRST_MESSAGE"),
		FFmpegPath:                 stringsTrimSpace("FFMPEG_PATH"),
		OptimizeStreamingLatency:   3,
		ShutdownTimeout:            15 * time.Second,
		ElevenLabsHandshakeTimeout: 10 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ElevenLabsHandshakeTimeout, err = durationFromEnv("ELEVENLABS_WS_HANDSHAKE_TIMEOUT", cfg.ElevenLabsHandshakeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OptimizeStreamingLatency, err = intFromEnv("ELEVENLABS_OPTIMIZE_STREAMING_LATENCY", cfg.OptimizeStreamingLatency)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ElevenLabsAPIKey == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	if cfg.ElevenLabsAgentID == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_AGENT_ID is required")
	}
	if cfg.OptimizeStreamingLatency < 0 || cfg.OptimizeStreamingLatency > 4 {
		return Config{}, fmt.Errorf("ELEVENLABS_OPTIMIZE_STREAMING_LATENCY must be between 0 and 4")
	}
	if cfg.ElevenLabsHandshakeTimeout < time.Second {
		return Config{}, fmt.Errorf("ELEVENLABS_WS_HANDSHAKE_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
