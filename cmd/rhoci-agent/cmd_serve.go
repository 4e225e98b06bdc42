package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhoci/rhoci/internal/agent"
	"github.com/rhoci/rhoci/internal/api"
	"github.com/rhoci/rhoci/internal/cache"
	"github.com/rhoci/rhoci/internal/catalog"
	"github.com/rhoci/rhoci/internal/config"
	"github.com/rhoci/rhoci/internal/jenkins"
	"github.com/rhoci/rhoci/internal/metrics"
	"github.com/rhoci/rhoci/internal/services"
	"github.com/rhoci/rhoci/internal/store"
	"github.com/rhoci/rhoci/internal/taxonomy"
	"github.com/rhoci/rhoci/internal/utils"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if rootFlags.debug {
		level = "debug"
	}

	logger := utils.NewLogger(level, cfg.Logging.JSON)
	logger.Info("starting rhoci-agent", slog.String("address", cfg.Server.Address), slog.String("jenkins", cfg.Jenkins.URL))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Build(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	if _, err := catalog.Load(ctx, logger, st, cat); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	dfgs := taxonomy.Builtin()
	if cfg.Squads.Path != "" {
		if dfgs, err = taxonomy.LoadFile(cfg.Squads.Path); err != nil {
			return fmt.Errorf("load squads: %w", err)
		}
	}
	if _, err := taxonomy.Seed(ctx, logger, st, dfgs); err != nil {
		return fmt.Errorf("seed squads: %w", err)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider()
	}
	ci := jenkins.NewClient(jenkins.Options{
		BaseURL:           cfg.Jenkins.URL,
		User:              cfg.Jenkins.User,
		Password:          cfg.Jenkins.Password,
		Timeout:           cfg.Jenkins.Timeout,
		RequestsPerSecond: cfg.Jenkins.RequestsPerSecond,
		Burst:             cfg.Jenkins.Burst,
		BuildsPerJob:      cfg.Jenkins.BuildsPerJob,
		MaxConsoleBytes:   cfg.Jenkins.MaxConsoleBytes,
		Cache:             cacheProvider,
		JobsTTL:           cfg.Cache.JobsTTL,
	})

	ingest, err := agent.New(cfg.Agent, ci, st, cat, logger.With(slog.String("component", "agent")))
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	queryService := services.NewQueryService(logger, st, ci)
	server, err := api.NewServer(cfg.Server, queryService)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	ingest.Start(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := ingest.Wait(); err != nil {
		logger.Warn("ingestion agent stopped with error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("rhoci-agent stopped")
	return nil
}
