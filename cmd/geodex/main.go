package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/config"
	"github.com/kailas-cloud/geodex/internal/db/engine"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/query"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/geodex/internal/logger"
	"github.com/kailas-cloud/geodex/internal/metrics"
	placerepo "github.com/kailas-cloud/geodex/internal/repository/place"
	chiTransport "github.com/kailas-cloud/geodex/internal/transport/chi"
	autocompleteuc "github.com/kailas-cloud/geodex/internal/usecase/autocomplete"
	"github.com/kailas-cloud/geodex/internal/usecase/format"
	healthuc "github.com/kailas-cloud/geodex/internal/usecase/health"
	lookupuc "github.com/kailas-cloud/geodex/internal/usecase/lookup"
	"github.com/kailas-cloud/geodex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting geodex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("index", cfg.Index.Name),
	)

	store, err := engine.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to create index store", zap.Error(err))
	}
	defer store.Close()

	// Wait for the engine to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index engine not ready", zap.Error(err))
	}
	logger.Info("Connected to index engine")

	// Register index metrics explicitly (no init())
	metrics.RegisterIndexMetrics()

	priority, err := place.NewPriority(cfg.Ranking.TypePriority)
	if err != nil {
		logger.Fatal("Invalid type priority", zap.Error(err))
	}

	repo := placerepo.New(store, placerepo.Options{
		IndexName:  cfg.Index.Name,
		KeyPrefix:  cfg.Index.KeyPrefix,
		Timeout:    time.Duration(cfg.Index.RequestTimeoutMs) * time.Millisecond,
		RetryDelay: time.Duration(cfg.Index.RetryDelayMs) * time.Millisecond,
	}, placerepo.Metrics{
		Requests: metrics.IndexRequestsTotal,
		Duration: metrics.IndexRequestDuration,
		Retries:  metrics.IndexRetriesTotal,
		Dropped:  metrics.CandidatesDroppedTotal,
	}, logger)

	parser := query.NewParser(query.PostcodeFormat{
		Country: cfg.Query.PostcodeCountry,
		Digits:  cfg.Query.PostcodeDigits,
	})
	builder := request.NewBuilder(
		request.Limits{Default: cfg.Query.DefaultLimit, Max: cfg.Query.MaxLimit},
		request.DefaultWeights(),
		request.Decay{
			ScaleMeters:  cfg.Ranking.DecayScaleKm * 1000,
			OffsetMeters: cfg.Ranking.DecayOffsetKm * 1000,
			Decay:        cfg.Ranking.Decay,
		},
	)
	merger := autocompleteuc.NewMerger(priority, cfg.Ranking.ScoreEpsilon, metrics.CandidatesDroppedTotal, logger)
	formatter := format.New()

	// Create use case services
	autocompleteSvc := autocompleteuc.New(parser, builder, repo, merger, formatter)
	lookupSvc := lookupuc.New(repo, merger, formatter, priority, cfg.Index.ReverseRadiusM)
	healthSvc := healthuc.New(store, store, cfg.Index.Name, version.Version)

	// Create chi server
	server := chiTransport.NewServer(autocompleteSvc, lookupSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
