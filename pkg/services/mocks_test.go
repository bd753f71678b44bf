package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

// mockSchemaRepository is a configurable SchemaRepository. Unset funcs
// return empty results.
type mockSchemaRepository struct {
	tables  []*models.CuratedTable
	columns map[uuid.UUID][]models.CuratedColumn

	nearestColumns []models.ColumnMatch
	nearestTables  []models.TableMatch

	indexColumns []repositories.IndexableColumn
	indexTables  []*models.CuratedTable

	listErr error

	mu               sync.Mutex
	lastColumnK      int
	lastTableK       int
	columnEmbeddings map[uuid.UUID][]float32
	tableEmbeddings  map[uuid.UUID][]float32
	includeEmbedded  bool
}

func (m *mockSchemaRepository) ListEnabledTables(ctx context.Context, dataSourceID uuid.UUID) ([]*models.CuratedTable, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tables, nil
}

func (m *mockSchemaRepository) ListEnabledColumns(ctx context.Context, tableIDs []uuid.UUID) (map[uuid.UUID][]models.CuratedColumn, error) {
	out := make(map[uuid.UUID][]models.CuratedColumn, len(tableIDs))
	for _, id := range tableIDs {
		if cols, ok := m.columns[id]; ok {
			out[id] = cols
		}
	}
	return out, nil
}

func (m *mockSchemaRepository) CountEnabledTables(ctx context.Context, dataSourceID uuid.UUID) (int, error) {
	return len(m.tables), m.listErr
}

func (m *mockSchemaRepository) FindNearestColumns(ctx context.Context, dataSourceID uuid.UUID, vec []float32, k int) ([]models.ColumnMatch, error) {
	m.mu.Lock()
	m.lastColumnK = k
	m.mu.Unlock()
	return m.nearestColumns, nil
}

func (m *mockSchemaRepository) FindNearestTables(ctx context.Context, dataSourceID uuid.UUID, vec []float32, k int) ([]models.TableMatch, error) {
	m.mu.Lock()
	m.lastTableK = k
	m.mu.Unlock()
	return m.nearestTables, nil
}

func (m *mockSchemaRepository) ListColumnsForIndexing(ctx context.Context, dataSourceID uuid.UUID, includeEmbedded bool) ([]repositories.IndexableColumn, error) {
	m.includeEmbedded = includeEmbedded
	return m.indexColumns, nil
}

func (m *mockSchemaRepository) ListTablesForIndexing(ctx context.Context, dataSourceID uuid.UUID, includeEmbedded bool) ([]*models.CuratedTable, error) {
	return m.indexTables, nil
}

func (m *mockSchemaRepository) UpdateColumnEmbedding(ctx context.Context, columnID uuid.UUID, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.columnEmbeddings == nil {
		m.columnEmbeddings = make(map[uuid.UUID][]float32)
	}
	m.columnEmbeddings[columnID] = vec
	return nil
}

func (m *mockSchemaRepository) UpdateTableEmbedding(ctx context.Context, tableID uuid.UUID, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tableEmbeddings == nil {
		m.tableEmbeddings = make(map[uuid.UUID][]float32)
	}
	m.tableEmbeddings[tableID] = vec
	return nil
}

var _ repositories.SchemaRepository = (*mockSchemaRepository)(nil)

type mockDataSourceRepository struct {
	active  []*models.DataSource
	listErr error
}

func (m *mockDataSourceRepository) ListActive(ctx context.Context) ([]*models.DataSource, error) {
	return m.active, m.listErr
}

func (m *mockDataSourceRepository) List(ctx context.Context) ([]*models.DataSource, error) {
	return m.active, m.listErr
}

func (m *mockDataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	for _, ds := range m.active {
		if ds.ID == id {
			return ds, nil
		}
	}
	return nil, nil
}

func (m *mockDataSourceRepository) GetByName(ctx context.Context, name string) (*models.DataSource, error) {
	for _, ds := range m.active {
		if ds.Name == name {
			return ds, nil
		}
	}
	return nil, nil
}

var _ repositories.DataSourceRepository = (*mockDataSourceRepository)(nil)

// mockQueryExecutor records the statements it runs.
type mockQueryExecutor struct {
	queryFunc func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error)

	queries []string
	closed  bool
}

func (m *mockQueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	m.queries = append(m.queries, sqlQuery)
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sqlQuery, limit)
	}
	return &datasource.QueryExecutionResult{}, nil
}

func (m *mockQueryExecutor) TestConnection(ctx context.Context) error { return nil }

func (m *mockQueryExecutor) Close() error {
	m.closed = true
	return nil
}

type mockAdapterFactory struct {
	executor   *mockQueryExecutor
	connectErr error
	opened     int
}

func (f *mockAdapterFactory) NewQueryExecutor(ctx context.Context, driver string, cfg *datasource.Config) (datasource.QueryExecutor, error) {
	f.opened++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.executor, nil
}

func (f *mockAdapterFactory) ListTypes() []datasource.DatasourceAdapterInfo { return nil }

var _ datasource.DatasourceAdapterFactory = (*mockAdapterFactory)(nil)

func strPtr(s string) *string { return &s }

func testTable(name string, description string, columns ...string) *models.CuratedTable {
	t := &models.CuratedTable{ID: uuid.New(), TableName: name, IsEnabled: true}
	if description != "" {
		t.Description = strPtr(description)
	}
	for _, c := range columns {
		t.Columns = append(t.Columns, models.CuratedColumn{
			ID: uuid.New(), TableID: t.ID, ColumnName: c, DataType: "text", IsEnabled: true,
		})
	}
	return t
}
