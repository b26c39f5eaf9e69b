package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/opsdash/notify-stream/internal/backoff"
	"github.com/opsdash/notify-stream/internal/client"
	"github.com/opsdash/notify-stream/internal/config"
	"github.com/opsdash/notify-stream/internal/logging"
	"github.com/opsdash/notify-stream/internal/reconcile"
	"github.com/opsdash/notify-stream/internal/sink"
	"github.com/opsdash/notify-stream/internal/state"
	"github.com/opsdash/notify-stream/internal/types"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogEnvironment())
	logger.Info("notify-stream starting",
		slog.String("version", Version),
		slog.String("endpoint", cfg.Endpoint()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.Load(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer store.Close()

	session := store.Session(cfg.SessionID())

	pruned, err := session.PruneSeen(cfg.SeenMaxAge)
	if err != nil {
		logger.Warn("pruning seen identifiers", slog.String("error", err.Error()))
	} else if pruned > 0 {
		logger.Info("pruned stale seen identifiers", slog.Int("count", pruned))
	}

	registry := types.NewRegistry(logger)
	if cfg.TypesFile != "" {
		if err := registry.LoadFile(cfg.TypesFile); err != nil {
			return fmt.Errorf("loading notification types: %w", err)
		}
	}

	reconciler := reconcile.New(reconcile.Config{
		Sink:     sink.NewLog(logger, cfg.SoundURL),
		Registry: registry,
		Store:    session,
	}, logger)

	conn := client.New(client.Config{
		Endpoint: cfg.Endpoint(),
		Token:    cfg.Token,
		Policy: backoff.Policy{
			Min:    cfg.ReconnectMin,
			Max:    cfg.ReconnectMax,
			Jitter: true,
		},
		Handler:   reconciler,
		Observers: []client.Observer{reconciler.ConnectionStateChanged},
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return conn.Run(gctx)
	})

	if cfg.TypesFile != "" {
		g.Go(func() error {
			return registry.Watch(gctx, cfg.TypesFile)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		// Signal-driven shutdown is the normal exit.
		logger.Info("notify-stream stopped")
		return nil
	}

	return err
}
