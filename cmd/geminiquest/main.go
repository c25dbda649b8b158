package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/questlab/geminiquest/pkg/core/quest"
	"github.com/questlab/geminiquest/pkg/gateway/assets"
	"github.com/questlab/geminiquest/pkg/gateway/config"
	"github.com/questlab/geminiquest/pkg/gateway/server"
	"github.com/questlab/geminiquest/pkg/gemini"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "geminiquest:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := gemini.New(ctx, gemini.Config{
		APIKey:               cfg.GeminiAPIKey,
		AnalyzeModel:         cfg.AnalyzeModel,
		ImageModel:           cfg.ImageModel,
		TTSModel:             cfg.TTSModel,
		VideoModel:           cfg.VideoModel,
		LiveModel:            cfg.LiveModel,
		Voice:                cfg.Voice,
		RequestTimeout:       cfg.RequestTimeout,
		VideoPollInterval:    cfg.VideoPollInterval,
		VideoPollMaxAttempts: cfg.VideoPollMaxAttempts,
		VideoSettleDelay:     cfg.VideoSettleDelay,
	}, logger)
	if err != nil {
		return err
	}

	store := quest.NewStore()
	assetStore := assets.NewStore(cfg.AssetTTL)
	pipeline := quest.NewPipeline(client, store, assetStore, logger, quest.Options{
		NarrationMaxChars: cfg.NarrationMaxChars,
	})
	defer pipeline.Close()

	srv := server.New(cfg, logger, server.Deps{
		Pipeline: pipeline,
		Store:    store,
		Assets:   assetStore,
		Dialer:   client,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	srv.Lifecycle().SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	srv.LiveSessions().CancelAll()
	if !srv.LiveSessions().Wait(shutdownCtx) {
		logger.Warn("live sessions did not drain in time")
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
