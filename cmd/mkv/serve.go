package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkvstore/coordinator/pkg/config"
	"github.com/mkvstore/coordinator/pkg/index"
	"github.com/mkvstore/coordinator/pkg/log"
	"github.com/mkvstore/coordinator/pkg/metrics"
	"github.com/mkvstore/coordinator/pkg/multipart"
	"github.com/mkvstore/coordinator/pkg/replication"
	"github.com/mkvstore/coordinator/pkg/server"
	"github.com/mkvstore/coordinator/pkg/volumeclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the coordinator's HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Volumes) == 0 {
		return errors.New("serve: at least one --volumes entry is required")
	}

	idx, err := index.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	metrics.RegisterComponent("index", true, "opened")
	metrics.RegisterComponent("api", false, "starting")

	vc := volumeclient.New(cfg.VolTimeout)
	coordinator := replication.New(idx, vc, cfg)
	uploads := multipart.NewRegistry(cfg.StagingDir)
	srv := server.New(coordinator, idx, uploads, vc, cfg)

	mux := http.NewServeMux()
	mux.Handle("/", srv)

	httpServer := &http.Server{
		Addr:         cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsMux.Handle("/healthz", metrics.HealthHandler())
		metricsMux.Handle("/readyz", metrics.ReadyHandler())
		metricsMux.Handle("/livez", metrics.LivenessHandler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			log.Info(fmt.Sprintf("metrics listening on %s", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	} else {
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/healthz", metrics.HealthHandler())
		mux.Handle("/readyz", metrics.ReadyHandler())
		mux.Handle("/livez", metrics.LivenessHandler())
	}

	metrics.RegisterComponent("api", true, "serving")

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("coordinator listening on %s", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
