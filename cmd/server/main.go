package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"digibattle/internal/config"
	"digibattle/internal/creature"
	"digibattle/internal/server"
	"digibattle/internal/session"
	"digibattle/internal/storage"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	roster := creature.NewStarterRegistry()
	mgr := session.NewManager(session.Options{
		Roster:          roster,
		Directory:       store,
		OpponentDelay:   cfg.OpponentDelay,
		ChallengerDelay: cfg.ChallengerDelay,
		Logger:          logger,
	})

	srv := server.New(roster, mgr, store, os.DirFS(cfg.WebDir), logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(srv, "battle"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		mgr.CleanupLoop(ctx, cfg.CleanupInterval, cfg.SessionMaxIdle)
		return nil
	})
	eg.Go(func() error {
		logger.InfoContext(ctx, "server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.InfoContext(ctx, "shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.CloseAll()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = eg.Wait()
	logger.Info("server shutdown complete")
	return err
}
