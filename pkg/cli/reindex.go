package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

func newReindexCmd(e *env) *cobra.Command {
	var (
		force      bool
		dataSource string
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Compute embeddings for curated tables and columns",
		Long: `Compute and store embeddings for enabled columns and described tables.
Rows that already have an embedding are skipped unless --force is given.
Without --data-source every active data source is indexed; with none active
the whole curated schema is indexed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, e)
			if err != nil {
				return err
			}
			defer a.Close()

			embeddings, err := a.embeddings()
			if err != nil {
				return err
			}
			indexer := services.NewSchemaIndexer(a.schema, embeddings, a.logger)

			var sources []*models.DataSource
			if dataSource != "" {
				ds, err := a.dataSources.GetByName(ctx, dataSource)
				if err != nil {
					return fmt.Errorf("data source %q: %w", dataSource, err)
				}
				sources = []*models.DataSource{ds}
			} else if sources, err = a.dataSources.ListActive(ctx); err != nil {
				return err
			}
			if len(sources) == 0 {
				sources = []*models.DataSource{{ID: uuid.Nil, Name: services.DefaultStoreName}}
			}

			out := cmd.OutOrStdout()
			for _, ds := range sources {
				stats, err := indexer.Reindex(ctx, ds.ID, force)
				if err != nil {
					return fmt.Errorf("reindex %s: %w", ds.Name, err)
				}
				fmt.Fprintf(out, "%s: %d columns, %d tables indexed\n", ds.Name, stats.Columns, stats.Tables)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Recompute embeddings that already exist")
	cmd.Flags().StringVar(&dataSource, "data-source", "", "Index only the named data source")
	return cmd
}
