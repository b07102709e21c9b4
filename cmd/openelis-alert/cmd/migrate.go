package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"openelis-alert/common/database"
	"openelis-alert/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := repository.RunMigrations(ctx, db, log); err != nil {
			log.Error("Migration failed", zap.Error(err))
			return err
		}
		log.Info("Database schema is up to date", zap.Int("version", repository.SchemaVersion()))
		return nil
	},
}
