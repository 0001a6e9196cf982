package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/directord/pkg/cache"
	"github.com/cuemby/directord/pkg/config"
	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/log"
	"github.com/cuemby/directord/pkg/worker"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the Directord client worker agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		identity, _ := cmd.Flags().GetString("identity")
		if identity == "" {
			identity, err = os.Hostname()
			if err != nil {
				return fmt.Errorf("client: resolve identity: %w", err)
			}
		}

		store, err := config.OpenDatastore(cfg.Datastore)
		if err != nil {
			return fmt.Errorf("client: open datastore: %w", err)
		}
		defer store.Close()
		localCache := cache.New(store, cfg.CacheTTLDuration())

		drv, err := driver.New(cfg.Driver)
		if err != nil {
			return fmt.Errorf("client: resolve driver: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		driverCfg := driver.Config{
			Driver:          cfg.Driver,
			ServerAddr:      cfg.ServerAddress,
			SharedKey:       cfg.SharedKey,
			CurveEncryption: cfg.CurveEncryption,
		}
		if err := drv.Connect(ctx, driverCfg); err != nil {
			return fmt.Errorf("client: connect %s to %s: %w", cfg.Driver, cfg.ServerAddress, err)
		}
		defer drv.Close()

		noBlockPoolSize, _ := cmd.Flags().GetInt("no-block-pool-size")
		w := worker.New(drv, localCache, worker.Config{
			Identity:          identity,
			Version:           Version,
			HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
			NoBlockPoolSize:   noBlockPoolSize,
		})

		logger := log.WithIdentity(identity)
		logger.Info().Str("server_address", cfg.ServerAddress).Msg("directord client starting")
		return w.Run(ctx)
	},
}

func init() {
	clientCmd.Flags().String("identity", "", "Identity to advertise (defaults to the host name)")
	clientCmd.Flags().Int("no-block-pool-size", 4, "Concurrency of the no_block job pool")
}
