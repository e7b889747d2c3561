package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/internal/directory"
	"github.com/zsiec/ndikit/internal/discovery"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/internal/server"
	"github.com/zsiec/ndikit/internal/snapshot"
	"github.com/zsiec/ndikit/pkg/version"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run discovery, the source directory and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, false); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.log
	logAdapter := a.logAdapter()

	log.WithField("version", version.GetInfo().Short()).Info("Starting NDIKit server")

	rt, err := openRuntime(cfg.NDI)
	if err != nil {
		return fmt.Errorf("failed to start NDI runtime: %w", err)
	}
	defer rt.Close()

	ndiVersion, _ := rt.Version()
	log.WithFields(logrus.Fields{
		"backend":       cfg.NDI.Backend,
		"ndi_version":   ndiVersion,
		"supported_cpu": rt.IsSupportedCPU(),
	}).Info("NDI runtime ready")

	var (
		redisClient redis.UniversalClient
		publishers  []discovery.Publisher
	)
	if cfg.Directory.Enabled {
		redisClient = directory.NewClient(cfg.Redis)
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.WithError(err).Error("Failed to close Redis connection")
			}
		}()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("Connected to Redis successfully")
		publishers = append(publishers, directory.New(redisClient, cfg.Directory, logAdapter))
	}

	disc, err := discovery.New(rt, finderOptions(cfg.NDI.Finder), cfg.Discovery, logAdapter, publishers...)
	if err != nil {
		return err
	}
	defer disc.Close()

	snaps := snapshot.New(rt, disc, cfg.Snapshot, cfg.NDI.Receiver, cfg.NDI.CaptureTimeout, logAdapter)
	defer snaps.Close()

	srv := server.New(&cfg.Server, log, server.Deps{
		Runtime:   rt,
		Sources:   disc,
		Snapshots: snaps,
		Redis:     redisClient,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     conc.WaitGroup
		srvErr error
	)
	wg.Go(func() {
		if err := disc.Run(ctx); err != nil {
			log.WithError(err).Error("Discovery stopped")
		}
	})
	wg.Go(func() {
		if err := snaps.Run(ctx); err != nil {
			log.WithError(err).Error("Snapshot receiver eviction stopped")
		}
	})
	if cfg.Metrics.Enabled {
		wg.Go(func() { runMetricsServer(ctx, cfg.Metrics, logAdapter) })
	}
	wg.Go(func() {
		// Everything else stops with the API server.
		defer cancel()
		srvErr = srv.Start(ctx)
	})
	wg.Wait()

	if srvErr != nil {
		return fmt.Errorf("server error: %w", srvErr)
	}
	log.Info("Server shutdown complete")
	return nil
}

// runMetricsServer serves Prometheus metrics until ctx ends.
func runMetricsServer(ctx context.Context, cfg config.MetricsConfig, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.WithField("addr", srv.Addr).Info("Starting metrics server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Metrics server error")
	}
}
