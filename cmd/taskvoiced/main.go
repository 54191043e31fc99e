// Command taskvoiced is the taskvoice server daemon. It authorizes
// against the remote task service on first start, syncs the local cache,
// and serves the voice command API.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cr8z/taskvoice/assistant"
	"github.com/cr8z/taskvoice/config"
	"github.com/cr8z/taskvoice/dida"
	"github.com/cr8z/taskvoice/internal/version"
	"github.com/cr8z/taskvoice/provider"
	"github.com/cr8z/taskvoice/server"
	"github.com/cr8z/taskvoice/store"
)

var configPath = flag.String("config", "config.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting taskvoiced",
		"version", version.Version,
		"commit", version.Commit,
	)

	st, err := store.New(cfg.Dida.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store %s: %v", cfg.Dida.DBPath, err)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := dida.NewClient(cfg.Dida, st, dida.NewOAuthFlow(cfg.Dida), logger)
	if err != nil {
		log.Fatalf("Failed to set up task service client: %v", err)
	}

	sf := provider.NewSiliconFlow(provider.SiliconFlowConfig{
		APIToken:     cfg.SiliconFlow.APIToken,
		BaseURL:      cfg.SiliconFlow.APIBaseURL,
		LLMModelFunc: cfg.LLMModel,
		ASRModel:     cfg.SiliconFlow.Models.ASR,
		TTSModel:     cfg.SiliconFlow.Models.TTS.Model,
		TTSVoice:     cfg.SiliconFlow.Models.TTS.DefaultVoice,
	})

	a := assistant.New(sf, client, st, logger, cfg.Dida.TimeZone)

	// Warm the cache; a failed sync is not fatal, commands fall back to
	// whatever the cache already holds.
	if report, err := a.HandleSync(ctx); err != nil {
		logger.Warn("initial sync failed", "err", err)
	} else {
		logger.Info("initial sync complete",
			"projects", report.ProjectCount,
			"tasks", report.TaskCount,
		)
	}

	srv := server.New(cfg, a, sf, sf, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "err", err)
	}
	logger.Info("shutdown complete")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
