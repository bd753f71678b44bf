package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/database"
)

func newMigrateCmd(e *env) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.OpenSQL(e.cfg.Database.URL())
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					e.logger.Warn("Failed to close store", zap.Error(err))
				}
			}()

			if !status {
				if err := database.RunMigrations(db, e.logger); err != nil {
					return err
				}
			}
			version, dirty, err := database.MigrationVersion(db, e.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "Only print the applied version")
	return cmd
}
