package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/CaptainTK1/elevenlabs-websocket/internal/audio"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/config"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/elevenlabs"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/httpapi"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/logging"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("config error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client := elevenlabs.NewClient(elevenlabs.ClientConfig{
		APIKey:           cfg.ElevenLabsAPIKey,
		AgentID:          cfg.ElevenLabsAgentID,
		APIBaseURL:       cfg.ElevenLabsAPIBaseURL,
		HandshakeTimeout: cfg.ElevenLabsHandshakeTimeout,
	})

	transcoder, err := audio.ForOutputFormat(cfg.ElevenLabsOutputFormat, cfg.FFmpegPath, logger)
	if err != nil {
		logger.Error("transcoder init failed", "format", cfg.ElevenLabsOutputFormat, "error", err)
		os.Exit(1)
	}
	if transcoder == nil {
		logger.Info("agent audio passes through untouched", "format", cfg.ElevenLabsOutputFormat)
	} else {
		logger.Info("agent audio transcoded to telephony mu-law", "format", cfg.ElevenLabsOutputFormat)
	}

	api := httpapi.New(cfg, logger, metrics, client, transcoder)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
