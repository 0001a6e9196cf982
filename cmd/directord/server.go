package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/directord/pkg/config"
	"github.com/cuemby/directord/pkg/coordinator"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/metrics"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Directord coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUnixSocketSupport(); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("datastore", false, "initializing")
		metrics.RegisterComponent("driver", false, "initializing")

		store, err := config.OpenDatastore(cfg.Datastore)
		if err != nil {
			return fmt.Errorf("server: open datastore: %w", err)
		}
		defer store.Close()
		metrics.RegisterComponent("datastore", true, cfg.Datastore)

		drv, err := driver.New(cfg.Driver)
		if err != nil {
			return fmt.Errorf("server: resolve driver: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		driverCfg := driver.Config{
			Driver:          cfg.Driver,
			BindAddr:        cfg.BindAddress,
			SharedKey:       cfg.SharedKey,
			CurveEncryption: cfg.CurveEncryption,
		}
		if err := drv.Bind(ctx, driverCfg); err != nil {
			return fmt.Errorf("server: bind %s on %s: %w", cfg.Driver, cfg.BindAddress, err)
		}
		defer drv.Close()
		metrics.RegisterComponent("driver", true, cfg.Driver)

		co := coordinator.New(store, drv, coordinator.Config{
			SocketPath:        cfg.SocketPath,
			HeartbeatLiveness: 3 * cfg.HeartbeatIntervalDuration(),
		})

		logger := log.WithComponent("cmd")
		startMetricsServer(ctx, cfg.MetricsAddress, logger)

		logger.Info().Str("bind_address", cfg.BindAddress).Str("driver", cfg.Driver).Msg("directord server starting")
		return co.Run(ctx)
	},
}

// startMetricsServer runs the /metrics, /health, /ready and /live HTTP
// endpoints in the background until ctx is cancelled. A listen failure
// is logged, not fatal: the control plane itself doesn't depend on it.
func startMetricsServer(ctx context.Context, addr string, logger zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		logger.Info().Str("metrics_address", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}
