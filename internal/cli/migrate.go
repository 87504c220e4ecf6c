package cli

import (
	"context"
	"fmt"
	"time"

	"holidaysync/config"
	"holidaysync/internal/store"
	"holidaysync/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and provision the guest user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := util.InitLogger(cfg.Server.Env); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer util.SyncLogger()

			db, err := store.NewStore(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := db.Migrate(ctx, cfg.Business.GuestUserID); err != nil {
				return err
			}

			util.GetLogger().Info("Migrations applied", zap.String("guest_user_id", cfg.Business.GuestUserID))
			return nil
		},
	}
}
