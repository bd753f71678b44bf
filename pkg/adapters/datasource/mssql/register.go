package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DriverMSSQL,
			DisplayName: "Microsoft SQL Server",
		},
		QueryExecutorFactory: func(ctx context.Context, cfg *datasource.Config) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg)
		},
	})
}
