package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"openelis-alert/internal/app"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alert service until SIGINT/SIGTERM",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		log.Info("Starting openelis-alert",
			zap.String("database", cfg.Database.Host),
			zap.String("redis", cfg.Redis.Addr),
			zap.Bool("mqtt", cfg.MQTT.Enabled),
			zap.Bool("trigger_stream", cfg.Streams.Enabled),
		)

		a, err := app.NewApp(ctx, cfg, log)
		if err != nil {
			log.Error("Failed to create alert service", zap.Error(err))
			return err
		}
		if err := a.Start(ctx); err != nil {
			a.Stop()
			return err
		}

		<-ctx.Done()
		log.Info("Received signal, shutting down")

		if err := a.Stop(); err != nil {
			log.Error("Error during shutdown", zap.Error(err))
		}
		log.Info("Service stopped")
		return nil
	},
}
