package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/hs-analyzer/internal/application"
	"github.com/bryanwahyu/hs-analyzer/internal/application/analyses"
	"github.com/bryanwahyu/hs-analyzer/internal/application/pipeline"
	"github.com/bryanwahyu/hs-analyzer/internal/config"
	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/ai/openai"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/ai/stages"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/db/memory"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/db/migrations"
	mysqlp "github.com/bryanwahyu/hs-analyzer/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/hs-analyzer/internal/infra/db/postgres"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/httpserver"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/logger"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/storage"
	"github.com/bryanwahyu/hs-analyzer/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checkers := map[string]middleware.HealthChecker{}

	// init repo
	db, repo, failures, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}
	log.Info("repository ready", zap.String("driver", cfg.Database.Driver))

	// init result store
	var results domain.ResultStore
	switch cfg.Storage.Driver {
	case "minio":
		store, err := storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		results = store
		checkers["storage"] = store
	case "file":
		store, err := storage.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return fmt.Errorf("file store init: %w", err)
		}
		results = store
		checkers["storage"] = store
	}
	log.Info("result store ready", zap.String("driver", cfg.Storage.Driver))

	// init LLM stages
	client := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.HTTPTimeout)
	client.MaxTokens = cfg.LLM.MaxTokens

	orch := &pipeline.Orchestrator{
		Enricher: &stages.Enricher{
			Client:      client,
			Components:  cfg.Validation.ExpectedComponents,
			Temperature: cfg.LLM.Enrich.Temperature,
		},
		Classifier: &stages.Classifier{Client: client, Temperature: cfg.LLM.Classify.Temperature},
		Scorer:     &stages.Scorer{Client: client, Temperature: cfg.LLM.Score.Temperature},
		Validator:  domain.NewComprehensiveValidator(cfg.Validation),
		Clock:      application.SystemClock{},
		Config:     cfg.PipelineConfig(),
		Log:        log.Named("pipeline"),
	}

	recorder := middleware.NewRecorder()

	// init service
	svc := &analyses.Service{
		Runner:           orch,
		Repo:             repo,
		Failures:         failures,
		Results:          results,
		Metrics:          recorder,
		Log:              log.Named("analyses"),
		BatchParallelism: cfg.Pipeline.BatchParallelism,
	}

	var ready atomic.Bool
	opts := httpserver.Options{
		Metrics:      recorder,
		Checkers:     checkers,
		Ready:        &ready,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBatchSize: cfg.Pipeline.MaxBatchSize,
		Log:          log.Named("http"),
	}
	if cfg.Auth.Enabled {
		opts.APIKeys = cfg.Auth.Keys
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = middleware.NewRateLimiter(ctx, cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewRouter(svc, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", addr), zap.String("model", cfg.LLM.Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	ready.Store(true)

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// openRepositories picks the persistence backend. db is nil for the memory driver.
func openRepositories(ctx context.Context, cfg *config.Config) (*sql.DB, domain.Repository, domain.FailureRepository, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		if err := migrate(ctx, cfg, db, "mysql"); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, mysqlp.NewAnalysisRepository(db), mysqlp.NewStageFailureRepository(db), nil
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := migrate(ctx, cfg, db, "postgres"); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, pgp.NewAnalysisRepository(db), pgp.NewStageFailureRepository(db), nil
	default:
		return nil, memory.NewAnalysisRepository(), memory.NewStageFailureRepository(), nil
	}
}

func migrate(ctx context.Context, cfg *config.Config, db *sql.DB, dialect string) error {
	if !cfg.Database.Migrate {
		return nil
	}
	if err := migrations.Run(ctx, db, dialect); err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}
