package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// DataSourceRepository provides read access to configured target databases.
type DataSourceRepository interface {
	// ListActive returns every data source flagged active, ordered by name.
	ListActive(ctx context.Context) ([]*models.DataSource, error)
	List(ctx context.Context) ([]*models.DataSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error)
	GetByName(ctx context.Context, name string) (*models.DataSource, error)
}

type dataSourceRepository struct {
	db Querier
}

// NewDataSourceRepository creates a DataSourceRepository over the given store.
func NewDataSourceRepository(db Querier) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

var _ DataSourceRepository = (*dataSourceRepository)(nil)

const dataSourceColumns = `id, name, driver, host, port, database_name, username, password,
	ssl_mode, is_active, last_inspected_at, created_at, updated_at`

func (r *dataSourceRepository) ListActive(ctx context.Context) ([]*models.DataSource, error) {
	return r.list(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE is_active ORDER BY name`)
}

func (r *dataSourceRepository) List(ctx context.Context) ([]*models.DataSource, error) {
	return r.list(ctx, `SELECT `+dataSourceColumns+` FROM data_sources ORDER BY name`)
}

func (r *dataSourceRepository) list(ctx context.Context, query string) ([]*models.DataSource, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		sources = append(sources, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data sources: %w", err)
	}
	return sources, nil
}

func (r *dataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	row := r.db.QueryRow(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = $1`, id)
	ds, err := scanDataSource(row)
	if err != nil {
		return nil, fmt.Errorf("data source %s: %w", id, mapError(err))
	}
	return ds, nil
}

func (r *dataSourceRepository) GetByName(ctx context.Context, name string) (*models.DataSource, error) {
	row := r.db.QueryRow(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE name = $1`, name)
	ds, err := scanDataSource(row)
	if err != nil {
		return nil, fmt.Errorf("data source %q: %w", name, mapError(err))
	}
	return ds, nil
}

func scanDataSource(row pgx.Row) (*models.DataSource, error) {
	var ds models.DataSource
	err := row.Scan(
		&ds.ID, &ds.Name, &ds.Driver, &ds.Host, &ds.Port, &ds.DatabaseName,
		&ds.Username, &ds.Password, &ds.SSLMode, &ds.IsActive, &ds.LastInspectedAt,
		&ds.CreatedAt, &ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}
