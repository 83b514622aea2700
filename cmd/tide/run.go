package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/RezaEskandarii/tide/app"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadViper(configFile)
		if err != nil {
			return err
		}
		cfg, err := buildConfig(v)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		container, err := app.NewContainer(ctx, cfg)
		if err != nil {
			return err
		}
		log := container.Logger
		log.Infow("Starting tide", "cluster", cfg.ClusterID, "node", cfg.NodeID,
			"storage", cfg.StorageDriver.String(), "leader", cfg.LeaderDriver.String())

		_ = container.Run(ctx)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := container.Close(shutdownCtx); err != nil {
			log.Errorw("Error shutting down", "error", err)
			return err
		}
		log.Info("tide stopped")
		_ = log.Sync()
		return nil
	},
}
