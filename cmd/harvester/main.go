package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/paper-harvester/internal/acquire"
	h "github.com/veranemoloko/paper-harvester/internal/api/http"
	cfgpkg "github.com/veranemoloko/paper-harvester/internal/config"
	"github.com/veranemoloko/paper-harvester/internal/orchestrator"
	"github.com/veranemoloko/paper-harvester/internal/recovery"
	repo "github.com/veranemoloko/paper-harvester/internal/repository"
	svc "github.com/veranemoloko/paper-harvester/internal/service"
	"github.com/veranemoloko/paper-harvester/internal/source"
	"github.com/veranemoloko/paper-harvester/internal/storage"
	"github.com/veranemoloko/paper-harvester/internal/watcher"
)

func main() {
	_ = godotenv.Load()

	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	logger := slog.Default()
	logger.Info("configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	papers := repo.NewPaperStore(db)
	tasks := repo.NewTaskStore(db)

	if _, _, err := recovery.Sweep(ctx, papers, tasks, logger); err != nil {
		logger.Error("recovery sweep failed", "error", err)
		os.Exit(1)
	}

	session, err := source.Attach(ctx, cfg.BrowserAddress, cfg.DownloadDir, logger)
	if err != nil {
		logger.Error("failed to attach to browser", "error", err,
			"hint", "start the browser with --remote-debugging-port and log in to the portal")
		os.Exit(1)
	}
	defer session.Close()

	classifier := acquire.NewClassifier()
	engine := acquire.NewEngine(
		acquire.EngineConfig{
			DownloadDir:  cfg.DownloadDir,
			StrategyWait: cfg.StrategyWait,
			ItemTimeout:  cfg.PerItemTimeout,
		},
		acquire.DefaultStrategies(session, classifier, acquire.StrategyConfig{
			DirectPDFTemplate: cfg.DirectPDFTemplate,
			ViewerTemplate:    cfg.ViewerTemplate,
		}),
		watcher.New(logger),
		logger,
	)
	retrier := acquire.NewRetrier(
		acquire.RetryPolicy{
			MaxAttempts:    cfg.MaxAttempts,
			RateLimitUnit:  cfg.RateLimitBackoff,
			TransientDelay: cfg.RetryDelay,
			UnknownDelay:   cfg.RetryDelay,
		},
		classifier,
		logger,
	)
	collector := source.NewPageCollector(session, source.CollectorConfig{
		SearchTemplate: cfg.SearchTemplate,
		RowsPerPage:    cfg.RowsPerPage,
		MaxPages:       cfg.MaxPages,
	}, logger)

	artifacts := storage.NewArtifactStore(cfg.DownloadDir)
	orch := orchestrator.New(orchestrator.Deps{
		Papers:    papers,
		Tasks:     tasks,
		Artifacts: artifacts,
		Collector: collector,
		Acquirer:  engine,
		Retrier:   retrier,
		Pacing:    cfg.PacingInterval,
		Logger:    logger,
	})
	harvest := svc.NewHarvestService(orch, papers, tasks, artifacts, cfg.LegacyStateFile, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      h.NewRouter(harvest, logger),
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := harvest.Shutdown(shutdownCtx); err != nil {
			logger.Error("harvest service shutdown failed", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}
