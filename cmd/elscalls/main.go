package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mindprints/els-calls/internal/api"
	"github.com/mindprints/els-calls/internal/audio"
	"github.com/mindprints/els-calls/internal/callflow"
	"github.com/mindprints/els-calls/internal/config"
	"github.com/mindprints/els-calls/internal/convo"
	"github.com/mindprints/els-calls/internal/llm"
	"github.com/mindprints/els-calls/internal/settings"
	"github.com/mindprints/els-calls/internal/stt"
	"github.com/mindprints/els-calls/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting elscalls",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"base_url", cfg.PublicBaseURL(),
		"ai_configured", cfg.AIConfigured(),
	)

	settingsStore, err := settings.NewStore(filepath.Join(cfg.DataDir, "settings.json"), logger)
	if err != nil {
		slog.Error("failed to open settings", "error", err)
		os.Exit(1)
	}

	audioDir := filepath.Join(cfg.DataDir, "audio")
	audioStore, err := audio.NewStore(audioDir, logger)
	if err != nil {
		slog.Error("failed to open audio store", "error", err)
		os.Exit(1)
	}

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Sweep generated per-call files (reply artifacts, transcripts) so a
	// day of conversations never accumulates on disk.
	audio.StartCleanupTicker(appCtx, audioStore, cfg.CleanupInterval, cfg.RetentionMaxAge)

	// Conversation pipeline, only when every provider key is present. The
	// hotline runs without it; the AI program then degrades to a hangup.
	var pipeline api.TurnRunner
	if cfg.AIConfigured() {
		snap, err := settingsStore.Snapshot()
		if err != nil {
			slog.Error("failed to read settings", "error", err)
			os.Exit(1)
		}

		transcriber := stt.NewClient(stt.Config{
			APIKey:   cfg.SonioxAPIKey,
			Language: snap.Language,
		}, logger)
		responder := llm.NewClient(llm.Config{
			APIKey:   cfg.DeepSeekAPIKey,
			Language: snap.Language,
		}, logger)
		synthesizer := tts.NewClient(tts.Config{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.VoiceID,
		}, logger)

		history := convo.NewHistoryStore(audioDir)
		pipeline = convo.NewPipeline(transcriber, responder, synthesizer, audioStore, history, logger)
	} else {
		slog.Warn("conversation providers not fully configured, AI replies disabled")
	}

	engine := callflow.NewEngine(cfg.PublicBaseURL(), audioStore, pipeline != nil, logger)

	handler := api.NewServer(settingsStore, audioStore, engine, pipeline, logger)
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("elscalls stopped")
}
