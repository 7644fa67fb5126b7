// Command analyze runs one checkpointed market analysis end to end and
// prints the resulting GraphState, recommendation included, as JSON. It is the thin
// illustrative driver spec §6 names: configuration loading, collaborator
// wiring, and a single Engine.Run call, grounded on
// cmd/orchestrator/main.go's flag-parsing and zerolog-to-stderr texture,
// generalized from a long-running service loop to one run per
// condition_id.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/agent"
	"github.com/marketintel/engine/internal/bus"
	"github.com/marketintel/engine/internal/checkpoint"
	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/engine"
	"github.com/marketintel/engine/internal/externaldata"
	"github.com/marketintel/engine/internal/marketdata"
	"github.com/marketintel/engine/internal/memory"
	"github.com/marketintel/engine/internal/secrets"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ./configs/config.yaml)")
	conditionID := flag.String("condition-id", "", "Polymarket condition_id to analyze (required)")
	marketDataURL := flag.String("market-data-url", "", "base URL of the market-data collaborator (omit to use a built-in stub market)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *conditionID == "" {
		log.Fatal().Msg("--condition-id is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.App.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	resolver, err := secrets.NewResolver(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build secrets resolver")
	}

	defaultAdapter, perKindAdapters, err := engine.BuildAdapters(ctx, cfg.LLM, resolver)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build LLM adapters")
	}
	registry := agent.NewRegistry(defaultAdapter, perKindAdapters)

	market := buildMarketClient(*marketDataURL, cfg)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	externalService := externaldata.NewService(
		externaldata.DefaultProviders(),
		externaldata.NewCache(redisClient, map[externaldata.Source]time.Duration{
			externaldata.SourceNews:    cfg.ExternalData.News.TTL(),
			externaldata.SourcePolling: cfg.ExternalData.Polling.TTL(),
			externaldata.SourceSocial:  cfg.ExternalData.Social.TTL(),
		}),
		externaldata.NewBreakerManager(nil),
		externaldata.NewRateLimiter(nil),
		30*time.Second,
	)

	checkpoints, pool := buildCheckpointStore(ctx, cfg)
	if pool != nil {
		defer pool.Close()
	}

	var recaller engine.MemoryRecaller
	if pool != nil {
		recaller = memory.NewStore(pool)
	}

	publisher, err := bus.NewPublisher(bus.Config{NATSURL: cfg.NATS.URL})
	if err != nil {
		log.Warn().Err(err).Msg("bus publisher unavailable, continuing without lifecycle events")
		publisher = nil
	}
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
	}

	riskAdapter := defaultAdapter

	eng := engine.New(engine.Config{
		Agents:           cfg.Agents,
		AdvancedAgents:   cfg.AdvancedAgents,
		CostOptimization: cfg.CostOptimization,
		SignalFusion:     cfg.SignalFusion,
		Consensus:        cfg.Consensus,
	}, checkpoints, market, externalService, registry, riskAdapter, engine.NewLLMProbe(defaultAdapter), recaller, publisher)

	log.Info().Str("condition_id", *conditionID).Msg("starting analysis run")

	state, err := eng.Run(ctx, *conditionID)
	if err != nil {
		log.Error().Err(err).Msg("analysis run did not complete")
	}

	output, marshalErr := json.MarshalIndent(state, "", "  ")
	if marshalErr != nil {
		log.Fatal().Err(marshalErr).Msg("failed to marshal result")
	}
	fmt.Println(string(output))

	if err != nil {
		os.Exit(1)
	}
}

// buildMarketClient prefers a real HTTP collaborator when a base URL is
// given, wrapped in the Redis-backed cache; otherwise it falls back to a
// stub market so the driver runs without external dependencies for a
// quick local check.
func buildMarketClient(baseURL string, cfg *config.Config) marketdata.Client {
	if baseURL == "" {
		log.Warn().Msg("no --market-data-url given, using an empty stub market client")
		return marketdata.NewStubClient(nil)
	}

	apiKey := ""
	httpClient := marketdata.NewHTTPClient(baseURL, apiKey)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return marketdata.NewCachedClient(httpClient, redisClient, 30*time.Second)
}

// buildCheckpointStore connects to Postgres when a database host is
// configured; otherwise checkpoints live only in memory for the
// lifetime of this process, which is fine for a single illustrative
// run.
func buildCheckpointStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, *pgxpool.Pool) {
	if cfg.Database.Host == "" {
		log.Warn().Msg("no database configured, checkpoints are kept in memory only")
		return checkpoint.NewMemoryStore(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to Postgres, falling back to in-memory checkpoints")
		return checkpoint.NewMemoryStore(), nil
	}

	store := checkpoint.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure checkpoint schema, falling back to in-memory checkpoints")
		pool.Close()
		return checkpoint.NewMemoryStore(), nil
	}
	return store, pool
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
