package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

func newCheckCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the store, the active data source and the curated schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := newApp(ctx, e)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(out, "store: ok")
			if a.redis != nil {
				fmt.Fprintln(out, "redis: ok")
			}

			sources, err := a.dataSources.List(ctx)
			if err != nil {
				return err
			}
			for _, ds := range sources {
				fmt.Fprintf(out, "configured: %s active=%t\n", ds, ds.IsActive)
			}

			target, err := a.resolver().Resolve(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "data source: %s (%s)\n", target.Name, target.Driver)

			executor, err := a.adapters.NewQueryExecutor(ctx, target.Driver, target.Config)
			if err != nil {
				return err
			}
			defer func() {
				if err := executor.Close(); err != nil {
					e.logger.Warn("Failed to close target connection", zap.Error(err))
				}
			}()
			if err := executor.TestConnection(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "target connection: ok")

			n, err := a.schema.CountEnabledTables(ctx, target.DataSourceID)
			if err != nil {
				return err
			}
			if n == 0 {
				return apperrors.Configuration("data source %s has no enabled tables", target.Name)
			}
			fmt.Fprintf(out, "enabled tables: %d\n", n)
			return nil
		},
	}
}
