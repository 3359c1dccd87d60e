package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bookmarks/internal/config"
	pgstore "github.com/JakeFAU/bookmarks/internal/storage/postgres"
)

const migrateTimeout = 30 * time.Second

// newMigrateCmd applies the embedded schema. The schema is idempotent, so the
// command is safe to rerun.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.Store.Driver != config.StorePostgres {
				return errors.New("migrate requires store.driver=postgres")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()
			store, err := pgstore.New(ctx, pgstore.Config{DSN: rt.cfg.DB.DSN, MaxConns: 1})
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer store.Close()
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			rt.logger.Info("schema applied")
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
