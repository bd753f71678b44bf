package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// IndexableColumn is an enabled column queued for embedding.
type IndexableColumn struct {
	Column    models.CuratedColumn
	TableName string
}

// SchemaRepository provides read access to the curated schema and the
// embedding writes performed by the indexer. The ask pipeline only reads.
type SchemaRepository interface {
	// ListEnabledTables returns enabled tables ordered by name.
	// uuid.Nil as dataSourceID means every data source.
	ListEnabledTables(ctx context.Context, dataSourceID uuid.UUID) ([]*models.CuratedTable, error)
	// ListEnabledColumns returns enabled columns grouped by table ID, in column-name order.
	// Only columns of enabled tables are returned.
	ListEnabledColumns(ctx context.Context, tableIDs []uuid.UUID) (map[uuid.UUID][]models.CuratedColumn, error)
	// CountEnabledTables returns the number of enabled tables.
	CountEnabledTables(ctx context.Context, dataSourceID uuid.UUID) (int, error)

	// FindNearestColumns returns the k enabled columns (of enabled tables) whose
	// embeddings are closest to vec by cosine distance.
	FindNearestColumns(ctx context.Context, dataSourceID uuid.UUID, vec []float32, k int) ([]models.ColumnMatch, error)
	// FindNearestTables returns the k enabled tables closest to vec by cosine distance.
	FindNearestTables(ctx context.Context, dataSourceID uuid.UUID, vec []float32, k int) ([]models.TableMatch, error)

	// Indexer
	ListColumnsForIndexing(ctx context.Context, dataSourceID uuid.UUID, includeEmbedded bool) ([]IndexableColumn, error)
	ListTablesForIndexing(ctx context.Context, dataSourceID uuid.UUID, includeEmbedded bool) ([]*models.CuratedTable, error)
	UpdateColumnEmbedding(ctx context.Context, columnID uuid.UUID, vec []float32) error
	UpdateTableEmbedding(ctx context.Context, tableID uuid.UUID, vec []float32) error
}

type schemaRepository struct {
	db Querier
}

// NewSchemaRepository creates a SchemaRepository over the given store.
func NewSchemaRepository(db Querier) SchemaRepository {
	return &schemaRepository{db: db}
}

var _ SchemaRepository = (*schemaRepository)(nil)

const tableColumns = `t.id, t.data_source_id, t.table_name, t.description, t.is_enabled,
	t.embedding IS NOT NULL, t.created_at, t.updated_at`

const columnColumns = `c.id, c.table_id, c.column_name, c.data_type, c.description,
	c.is_metric, c.is_dimension, c.is_enabled, c.embedding IS NOT NULL, c.created_at, c.updated_at`

func (r *schemaRepository) ListEnabledTables(ctx context.Context, dataSourceID uuid.UUID) ([]*models.CuratedTable, error) {
	query := `
		SELECT ` + tableColumns + `
		FROM curated_tables t
		WHERE t.is_enabled
		  AND ($1::uuid IS NULL OR t.data_source_id = $1)
		ORDER BY t.table_name`

	rows, err := r.db.Query(ctx, query, optionalID(dataSourceID))
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.CuratedTable
	for rows.Next() {
		t, err := scanCuratedTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (r *schemaRepository) ListEnabledColumns(ctx context.Context, tableIDs []uuid.UUID) (map[uuid.UUID][]models.CuratedColumn, error) {
	result := make(map[uuid.UUID][]models.CuratedColumn, len(tableIDs))
	if len(tableIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT ` + columnColumns + `
		FROM curated_columns c
		JOIN curated_tables t ON t.id = c.table_id
		WHERE c.is_enabled AND t.is_enabled
		  AND c.table_id = ANY($1)
		ORDER BY c.table_id, c.column_name`

	rows, err := r.db.Query(ctx, query, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCuratedColumn(rows)
		if err != nil {
			return nil, err
		}
		result[c.TableID] = append(result[c.TableID], *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return result, nil
}

func (r *schemaRepository) CountEnabledTables(ctx context.Context, dataSourceID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM curated_tables
		WHERE is_enabled AND ($1::uuid IS NULL OR data_source_id = $1)`,
		optionalID(dataSourceID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enabled tables: %w", err)
	}
	return count, nil
}

func (r *schemaRepository) FindNearestColumns(ctx context.Context, dataSourceID uuid.UUID, vec []float32, k int) ([]models.ColumnMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + columnColumns + `, t.table_name, c.embedding <=> $1 AS distance
		FROM curated_columns c
		JOIN curated_tables t ON t.id = c.table_id
		WHERE c.is_enabled AND t.is_enabled
		  AND c.embedding IS NOT NULL
		  AND ($2::uuid IS NULL OR t.data_source_id = $2)
		ORDER BY c.embedding <=> $1
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, pgvector.NewVector(vec), optionalID(dataSourceID), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search columns: %w", err)
	}
	defer rows.Close()

	var matches []models.ColumnMatch
	for rows.Next() {
		var m models.ColumnMatch
		c := &m.Column
		if err := rows.Scan(
			&c.ID, &c.TableID, &c.ColumnName, &c.DataType, &c.Description,
			&c.IsMetric, &c.IsDimension, &c.IsEnabled, &c.HasEmbedding, &c.CreatedAt, &c.UpdatedAt,
			&m.TableName, &m.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan column match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column matches: %w", err)
	}
	return matches, nil
}

func (r *schemaRepository) FindNearestTables(ctx context.Context, dataSourceID uuid.UUID, vec []float32, k int) ([]models.TableMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + tableColumns + `, t.embedding <=> $1 AS distance
		FROM curated_tables t
		WHERE t.is_enabled
		  AND t.embedding IS NOT NULL
		  AND ($2::uuid IS NULL OR t.data_source_id = $2)
		ORDER BY t.embedding <=> $1
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, pgvector.NewVector(vec), optionalID(dataSourceID), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search tables: %w", err)
	}
	defer rows.Close()

	var matches []models.TableMatch
	for rows.Next() {
		var m models.TableMatch
		t := &m.Table
		if err := rows.Scan(
			&t.ID, &t.DataSourceID, &t.TableName, &t.Description, &t.IsEnabled,
			&t.HasEmbedding, &t.CreatedAt, &t.UpdatedAt, &m.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan table match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table matches: %w", err)
	}
	return matches, nil
}

func (r *schemaRepository) ListColumnsForIndexing(ctx context.Context, dataSourceID uuid.UUID, includeEmbedded bool) ([]IndexableColumn, error) {
	query := `
		SELECT ` + columnColumns + `, t.table_name
		FROM curated_columns c
		JOIN curated_tables t ON t.id = c.table_id
		WHERE c.is_enabled AND t.is_enabled
		  AND ($1::uuid IS NULL OR t.data_source_id = $1)
		  AND ($2 OR c.embedding IS NULL)
		ORDER BY t.table_name, c.column_name`

	rows, err := r.db.Query(ctx, query, optionalID(dataSourceID), includeEmbedded)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns for indexing: %w", err)
	}
	defer rows.Close()

	var out []IndexableColumn
	for rows.Next() {
		var ic IndexableColumn
		c := &ic.Column
		if err := rows.Scan(
			&c.ID, &c.TableID, &c.ColumnName, &c.DataType, &c.Description,
			&c.IsMetric, &c.IsDimension, &c.IsEnabled, &c.HasEmbedding, &c.CreatedAt, &c.UpdatedAt,
			&ic.TableName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		out = append(out, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return out, nil
}

// ListTablesForIndexing returns enabled tables that carry a description.
// Undescribed tables have nothing worth embedding beyond their columns.
func (r *schemaRepository) ListTablesForIndexing(ctx context.Context, dataSourceID uuid.UUID, includeEmbedded bool) ([]*models.CuratedTable, error) {
	query := `
		SELECT ` + tableColumns + `
		FROM curated_tables t
		WHERE t.is_enabled
		  AND COALESCE(t.description, '') <> ''
		  AND ($1::uuid IS NULL OR t.data_source_id = $1)
		  AND ($2 OR t.embedding IS NULL)
		ORDER BY t.table_name`

	rows, err := r.db.Query(ctx, query, optionalID(dataSourceID), includeEmbedded)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables for indexing: %w", err)
	}
	defer rows.Close()

	var tables []*models.CuratedTable
	for rows.Next() {
		t, err := scanCuratedTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (r *schemaRepository) UpdateColumnEmbedding(ctx context.Context, columnID uuid.UUID, vec []float32) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE curated_columns SET embedding = $2, updated_at = now()
		WHERE id = $1`, columnID, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("failed to update column embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("column %s: %w", columnID, mapError(pgx.ErrNoRows))
	}
	return nil
}

func (r *schemaRepository) UpdateTableEmbedding(ctx context.Context, tableID uuid.UUID, vec []float32) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE curated_tables SET embedding = $2, updated_at = now()
		WHERE id = $1`, tableID, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("failed to update table embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table %s: %w", tableID, mapError(pgx.ErrNoRows))
	}
	return nil
}

func scanCuratedTable(rows pgx.Rows) (*models.CuratedTable, error) {
	var t models.CuratedTable
	err := rows.Scan(
		&t.ID, &t.DataSourceID, &t.TableName, &t.Description, &t.IsEnabled,
		&t.HasEmbedding, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	return &t, nil
}

func scanCuratedColumn(rows pgx.Rows) (*models.CuratedColumn, error) {
	var c models.CuratedColumn
	err := rows.Scan(
		&c.ID, &c.TableID, &c.ColumnName, &c.DataType, &c.Description,
		&c.IsMetric, &c.IsDimension, &c.IsEnabled, &c.HasEmbedding, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan column: %w", err)
	}
	return &c, nil
}
