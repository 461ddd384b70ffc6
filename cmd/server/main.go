// Package main provides the entry point for the discovery service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scholarmatch/discovery-service/internal/config"
	"github.com/scholarmatch/discovery-service/internal/observability"
	"github.com/scholarmatch/discovery-service/internal/openalex"
	"github.com/scholarmatch/discovery-service/internal/queryproc"
	"github.com/scholarmatch/discovery-service/internal/search"
	"github.com/scholarmatch/discovery-service/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("discovery-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up metrics collection when enabled.
	var metrics *observability.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("discovery")
		metricsHandler = promhttp.Handler()
	}

	// Create the upstream catalog client.
	catalog := openalex.NewWithMetrics(openalex.Config{
		BaseURL:    cfg.OpenAlex.BaseURL,
		Email:      cfg.OpenAlex.Email,
		Timeout:    cfg.OpenAlex.Timeout,
		RateLimit:  cfg.OpenAlex.RateLimit,
		BurstSize:  cfg.OpenAlex.BurstSize,
		MaxRetries: cfg.OpenAlex.MaxRetries,
		RetryDelay: cfg.OpenAlex.RetryDelay,
	}, metrics)

	// Create the search pipeline.
	cache := search.NewCache(search.CacheConfig{
		TTL:        cfg.Cache.TTL(),
		MaxEntries: cfg.Cache.MaxEntries,
		EvictBatch: cfg.Cache.EvictBatch,
	})
	scorer := search.NewScorer(search.ScorerConfig{
		CoverageWeight: cfg.Search.CoverageWeight,
		CitationWeight: cfg.Search.CitationWeight,
		CitationScale:  cfg.Search.CitationScale,
		MatchThreshold: cfg.Search.MatchThreshold,
	})
	searcher := search.NewSearcher(catalog, cache, scorer, search.SearcherConfig{
		Sort: cfg.Search.Sort,
	}, logger, metrics)

	// Create the query structuring processor when enabled.
	var structurer queryproc.Structurer
	if cfg.LLM.Enabled {
		processor, err := queryproc.New(queryproc.Config{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		}, logger, metrics)
		if err != nil {
			return fmt.Errorf("create query processor: %w", err)
		}
		structurer = processor
		logger.Info().Str("model", cfg.LLM.Model).Msg("query structuring enabled")
	}

	// Create the HTTP server.
	srv := server.NewServer(server.Config{
		Address:         cfg.Server.Address(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		SearchTimeout:   cfg.Server.SearchTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}, searcher, structurer, metricsHandler, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server starting")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("address", cfg.Server.Address()).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Bool("llm_enabled", cfg.LLM.Enabled).
		Msg("discovery-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down discovery-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("discovery-service shutdown complete")
	return nil
}
