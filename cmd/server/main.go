package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/api"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/config"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/engine"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Durable store: PostgreSQL when configured, SQLite otherwise
	var st store.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		st = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		st = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer st.Close()

	// Cache: Redis when configured, in-process otherwise
	var cache store.Cache
	if cfg.RedisURL != "" {
		redisCache, err := store.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		cache = redisCache
		logger.Info().Msg("connected to Redis")
	} else {
		cache = store.NewMemoryCache()
		logger.Info().Msg("using in-process cache")
	}
	defer cache.Close()

	// Protocol engine
	eng, err := engine.New(cfg.EngineOptions(), st, cache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine construction failed")
	}
	if err := eng.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("engine initialization failed")
	}

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	eng.Start(engineCtx)
	defer eng.Stop()

	// Create router
	router := api.NewRouter(logger, eng, st, cache)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("agent_id", cfg.AgentID).
			Msg("starting A2A engine server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
