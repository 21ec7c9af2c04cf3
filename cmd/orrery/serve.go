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
	"github.com/star/orrery/internal/api"
	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/stream"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and keyframe streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	logger := a.logger

	addr := a.v.GetString("http_addr")
	if addr == "" {
		addr = ":8080"
	}
	trustProxy := boolSetting(a.v, logger, "trust_proxy", false)

	authCfg, err := loadAuthConfig(a.v, logger)
	if err != nil {
		return fmt.Errorf("invalid auth configuration: %w", err)
	}

	catCfg := loadCatalogConfig(a.v, logger)
	store := catalog.NewStore()
	refresher, err := newRefresher(catCfg, store, logger)
	if err != nil {
		return err
	}
	ds := refresher.Bootstrap()
	logger.Info("catalog ready", "source", ds.Source, "body_count", len(ds.Bodies))

	clk := clock.New(loadClockSpeed(a.v, logger))
	metrics.SetClock(clk.Speed(), false)

	propCfg := loadPropConfig(a.v, logger)
	prop := propagation.NewPropagator(store, clk, propCfg, logger.With("component", "propagation"))
	metrics.SetPropagationWorkers(propCfg.Workers)

	kfCache := cache.NewKeyframeCache(loadCacheConfig(a.v, logger, propCfg), prop, logger)

	streamCfg := loadStreamConfig(a.v, logger)
	streamCfg.TrustProxy = trustProxy
	streamHandler := stream.NewHandler(kfCache, store, clk, streamCfg, logger)

	srv := api.NewServer(addr, logger, api.Deps{
		Store:      store,
		Clock:      clk,
		Propagator: prop,
		Cache:      kfCache,
		Stream:     streamHandler,
		Refresher:  refresher,
		Auth:       authCfg,
		RateLimit:  loadRateLimitConfig(a.v, logger),
		TrustProxy: trustProxy,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go kfCache.Start(ctx)
	go refresher.Run(ctx, catCfg.RefreshInterval)

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "neo_fetch_enabled", catCfg.FetchEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server listen: %w", err)
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
