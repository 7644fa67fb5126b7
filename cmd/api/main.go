// Command api serves the read-only checkpoint/history introspection
// surface over HTTP. It never runs an analysis itself — internal/engine
// (driven by cmd/analyze, or a future scheduler collaborator) owns
// writing checkpoints; this binary only reads them back.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/api"
	"github.com/marketintel/engine/internal/checkpoint"
	"github.com/marketintel/engine/internal/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	checkpoints, pool := buildCheckpointStore(cfg)
	if pool != nil {
		defer pool.Close()
	}

	server := api.NewServer(api.Config{
		Host:        cfg.API.Host,
		Port:        cfg.API.Port,
		Checkpoints: checkpoints,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("api server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during api server shutdown")
		os.Exit(1)
	}
}

func buildCheckpointStore(cfg *config.Config) (checkpoint.Store, *pgxpool.Pool) {
	if cfg.Database.Host == "" {
		log.Warn().Msg("no database configured, introspection API serves an empty in-memory store")
		return checkpoint.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to Postgres, falling back to in-memory checkpoints")
		return checkpoint.NewMemoryStore(), nil
	}
	return checkpoint.NewPostgresStore(pool), pool
}
