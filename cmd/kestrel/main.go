// Kestrel - Fraud detection for healthcare claims.
// Copyright (c) 2025 opensource.health
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-health/kestrel/internal/aggregates"
	"github.com/opensource-health/kestrel/internal/api"
	"github.com/opensource-health/kestrel/internal/assess"
	"github.com/opensource-health/kestrel/internal/bus"
	"github.com/opensource-health/kestrel/internal/cache"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/explain"
	"github.com/opensource-health/kestrel/internal/features"
	"github.com/opensource-health/kestrel/internal/graph"
	"github.com/opensource-health/kestrel/internal/model"
	"github.com/opensource-health/kestrel/internal/redflag"
	"github.com/opensource-health/kestrel/internal/repository"
	"github.com/opensource-health/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if path := os.Getenv("KESTREL_MODEL_PATH"); path != "" {
		cfg.Model.ArtifactPath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Store
	store, err := repository.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("store initialized", "driver", cfg.Store.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load the classifier artifact. A missing or invalid artifact is
	// fatal: the engine never runs without a model.
	scorer, err := model.Load(cfg.Model.ArtifactPath)
	if err != nil {
		slog.Error("failed to load classifier artifact",
			"path", cfg.Model.ArtifactPath,
			"error", err,
		)
		os.Exit(1)
	}
	if err := features.ValidateNames(scorer.FeatureNames()); err != nil {
		slog.Error("classifier feature list does not match the extractor",
			"path", cfg.Model.ArtifactPath,
			"error", fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err),
		)
		os.Exit(1)
	}
	slog.Info("classifier loaded",
		"version", scorer.Version(),
		"features", len(scorer.FeatureNames()),
	)

	// Initialize Red-Flag Rule Engine with the built-in rule set
	rules, err := redflag.NewEngine(cfg.RedFlags)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := rules.LoadRules(redflag.BuiltinRules()); err != nil {
		slog.Error("failed to load built-in rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", rules.RulesCount())

	// Initialize Aggregates Service
	stats := aggregates.NewService(store, cacheImpl, cfg.Cache.LocalTTL)
	slog.Info("aggregates service initialized")

	// Initialize Graph Detector
	detector := graph.NewDetector(cfg.Graph, logger)
	slog.Info("graph detector initialized", "pattern_budget", cfg.Graph.PatternBudget)

	// Initialize Explanation Generator (template mode)
	explainer := explain.NewGenerator(nil, logger)

	// Initialize Assessment Engine
	engine := assess.NewEngine(cfg, assess.Deps{
		Store:     store,
		Bus:       busImpl,
		Scorer:    scorer,
		Rules:     rules,
		Detector:  detector,
		Stats:     stats,
		Explainer: explainer,
		Logger:    logger,
	})
	slog.Info("assessment engine initialized", "workers", cfg.Assess.Workers)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, store, engine, logger)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, engine, rules, scorer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Claims Fraud Detection Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/assess           - Assess a batch of claims")
	fmt.Println("    POST /api/v1/assess/async     - Queue an assessment request")
	fmt.Println("    GET  /api/v1/assessments/{id} - Get assessment by ID")
	fmt.Println("    POST /api/v1/claims           - Ingest claims")
	fmt.Println("    GET  /api/v1/claims/{id}      - Get claim by ID")
	fmt.Println("    POST /api/v1/patients         - Ingest patients")
	fmt.Println("    POST /api/v1/providers        - Ingest providers")
	fmt.Println("    GET  /api/v1/rules            - List red-flag rules")
	fmt.Println("    POST /api/v1/rules            - Create a red-flag rule")
	fmt.Println("    GET  /api/v1/model            - Model metadata")
	fmt.Println("    GET  /api/v1/stats            - Assessment statistics")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
