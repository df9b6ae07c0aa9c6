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

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"ta-engine/internal/api"
	"ta-engine/internal/metrics"
)

const livenessInterval = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the REST and agent-protocol API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	src, err := openSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bar source: %w", err)
	}
	cache := openCache(cfg, m)
	analyzer := newAnalyzer(cfg, src, cache, m)
	defer func() {
		if err := analyzer.Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}()

	health := metrics.NewHealthStatus(cfg.Source.Kind)
	var rdb *goredis.Client
	if cache != nil {
		rdb = cache.Client()
	}
	health.StartLivenessChecker(ctx, rdb, src, livenessInterval)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(analyzer, health, m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", cfg.HTTPAddr, "source", cfg.Source.Kind, "cache", cache != nil)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		metricsSrv.Stop(context.Background())
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return multierr.Combine(
		apiSrv.Shutdown(shutdownCtx),
		metricsSrv.Stop(shutdownCtx),
	)
}
