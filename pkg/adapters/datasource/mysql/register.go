package mysql

import (
	"context"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DriverMySQL,
			DisplayName: "MySQL",
		},
		QueryExecutorFactory: func(ctx context.Context, cfg *datasource.Config) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg)
		},
	})
}
