package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
	sqlpkg "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// DefaultStoreName names the system store when it serves as execution target.
const DefaultStoreName = "default store"

// ExecutionTarget is the database one pipeline invocation runs against.
// It is resolved once and passed down unchanged.
type ExecutionTarget struct {
	// DataSourceID scopes schema retrieval. uuid.Nil means the default store,
	// whose curated schema spans every data source.
	DataSourceID uuid.UUID
	Name         string
	Driver       string
	Config       *datasource.Config
}

func (t *ExecutionTarget) Dialect() sqlpkg.Dialect {
	return sqlpkg.DialectForDriver(t.Driver)
}

// DataSourceResolver picks the execution target.
type DataSourceResolver interface {
	// Resolve returns the single active data source. Several active sources
	// are a configuration error; none falls back to the default store only
	// when that is enabled.
	Resolve(ctx context.Context) (*ExecutionTarget, error)
}

type dataSourceResolver struct {
	repo   repositories.DataSourceRepository
	store  config.DatabaseConfig
	query  config.QueryConfig
	logger *zap.Logger
}

func NewDataSourceResolver(
	repo repositories.DataSourceRepository,
	store config.DatabaseConfig,
	query config.QueryConfig,
	logger *zap.Logger,
) DataSourceResolver {
	return &dataSourceResolver{
		repo:   repo,
		store:  store,
		query:  query,
		logger: logger.Named("datasource-resolver"),
	}
}

var _ DataSourceResolver = (*dataSourceResolver)(nil)

func (r *dataSourceResolver) Resolve(ctx context.Context) (*ExecutionTarget, error) {
	active, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active data sources: %w", err)
	}

	switch len(active) {
	case 1:
		ds := active[0]
		return &ExecutionTarget{
			DataSourceID: ds.ID,
			Name:         ds.Name,
			Driver:       ds.Driver,
			Config:       datasource.ConfigFromDataSource(ds, r.query),
		}, nil
	case 0:
		if !r.query.FallbackToDefaultStore {
			return nil, apperrors.Configuration("no data source is active; activate exactly one data source")
		}
		r.logger.Info("No active data source, executing against the default store")
		return &ExecutionTarget{
			DataSourceID: uuid.Nil,
			Name:         DefaultStoreName,
			Driver:       models.DriverPostgres,
			Config:       datasource.ConfigFromStore(r.store, r.query),
		}, nil
	default:
		names := make([]string, len(active))
		for i, ds := range active {
			names[i] = ds.Name
		}
		return nil, apperrors.Configuration("%d data sources are active (%s); exactly one must be active",
			len(active), strings.Join(names, ", "))
	}
}
