package postgres

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

const closeTimeout = 5 * time.Second

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DriverPostgres,
			DisplayName: "PostgreSQL",
		},
		QueryExecutorFactory: func(ctx context.Context, cfg *datasource.Config) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg)
		},
	})
}
