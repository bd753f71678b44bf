package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// DatasourceAdapterFactory creates executors from the registry.
type DatasourceAdapterFactory interface {
	// NewQueryExecutor opens a connection for the given driver.
	NewQueryExecutor(ctx context.Context, driver string, cfg *Config) (QueryExecutor, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct{}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory() DatasourceAdapterFactory {
	return &registryFactory{}
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)

func (f *registryFactory) NewQueryExecutor(ctx context.Context, driver string, cfg *Config) (QueryExecutor, error) {
	factory := GetQueryExecutorFactory(driver)
	if factory == nil {
		return nil, apperrors.Configuration("unsupported data source driver %q (not compiled in)", driver)
	}
	return factory(ctx, cfg)
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// ConfigFromDataSource builds a connection config for a curated data source.
func ConfigFromDataSource(ds *models.DataSource, q config.QueryConfig) *Config {
	return &Config{
		Host:             ds.Host,
		Port:             ds.Port,
		User:             ds.Username,
		Password:         ds.Password,
		Database:         ds.DatabaseName,
		SSLMode:          ds.SSLMode,
		StatementTimeout: q.StatementTimeout,
		ConnectTimeout:   q.ConnectTimeout,
	}
}

// ConfigFromStore builds a connection config for the system's own store,
// used when no data source is active and fallback is enabled.
func ConfigFromStore(db config.DatabaseConfig, q config.QueryConfig) *Config {
	return &Config{
		Host:             db.Host,
		Port:             db.Port,
		User:             db.User,
		Password:         db.Password,
		Database:         db.Database,
		SSLMode:          db.SSLMode,
		StatementTimeout: q.StatementTimeout,
		ConnectTimeout:   q.ConnectTimeout,
	}
}
