//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/testhelpers"
)

const testDims = 768

// repoTestContext holds a clean store and seeding helpers.
type repoTestContext struct {
	t     *testing.T
	store *testhelpers.StoreDB
	ctx   context.Context
}

func setupRepoTest(t *testing.T) *repoTestContext {
	t.Helper()
	store := testhelpers.GetStoreDB(t)
	store.Truncate(t, "pipeline_outcomes", "chat_messages", "chat_sessions", "curated_columns", "curated_tables", "data_sources")
	return &repoTestContext{t: t, store: store, ctx: context.Background()}
}

// axis returns a unit vector along dimension i.
func axis(i int) []float32 {
	v := make([]float32, testDims)
	v[i] = 1
	return v
}

func (tc *repoTestContext) createDataSource(name string, active bool) uuid.UUID {
	tc.t.Helper()
	var id uuid.UUID
	err := tc.store.DB.QueryRow(tc.ctx, `
		INSERT INTO data_sources (name, driver, host, port, database_name, username, password, is_active)
		VALUES ($1, 'postgres', 'localhost', 5432, 'analytics', 'reader', 'secret', $2)
		RETURNING id`, name, active).Scan(&id)
	require.NoError(tc.t, err)
	return id
}

func (tc *repoTestContext) createTable(dsID uuid.UUID, name string, enabled bool, description *string, vec []float32) uuid.UUID {
	tc.t.Helper()
	var embedding any
	if vec != nil {
		embedding = pgvector.NewVector(vec)
	}
	var id uuid.UUID
	err := tc.store.DB.QueryRow(tc.ctx, `
		INSERT INTO curated_tables (data_source_id, table_name, description, is_enabled, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, dsID, name, description, enabled, embedding).Scan(&id)
	require.NoError(tc.t, err)
	return id
}

func (tc *repoTestContext) createColumn(tableID uuid.UUID, name, dataType string, enabled bool, vec []float32) uuid.UUID {
	tc.t.Helper()
	var embedding any
	if vec != nil {
		embedding = pgvector.NewVector(vec)
	}
	var id uuid.UUID
	err := tc.store.DB.QueryRow(tc.ctx, `
		INSERT INTO curated_columns (table_id, column_name, data_type, is_enabled, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, tableID, name, dataType, enabled, embedding).Scan(&id)
	require.NoError(tc.t, err)
	return id
}

func strPtr(s string) *string { return &s }

func TestSchemaRepository_ListEnabled(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewSchemaRepository(tc.store.DB)

	ds := tc.createDataSource("ads", true)
	tv := tc.createTable(ds, "tv", true, strPtr("TV campaigns"), nil)
	ooh := tc.createTable(ds, "ooh", true, nil, nil)
	tc.createTable(ds, "staging", false, nil, nil)

	tc.createColumn(tv, "spend", "numeric", true, nil)
	tc.createColumn(tv, "channel", "text", true, nil)
	tc.createColumn(tv, "internal_note", "text", false, nil)

	tables, err := repo.ListEnabledTables(tc.ctx, ds)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "ooh", tables[0].TableName)
	assert.Equal(t, "tv", tables[1].TableName)
	assert.Equal(t, "TV campaigns", tables[1].DescriptionText())

	all, err := repo.ListEnabledTables(tc.ctx, uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := repo.CountEnabledTables(tc.ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	cols, err := repo.ListEnabledColumns(tc.ctx, []uuid.UUID{tv, ooh})
	require.NoError(t, err)
	require.Len(t, cols[tv], 2)
	assert.Equal(t, "channel", cols[tv][0].ColumnName)
	assert.Equal(t, "spend", cols[tv][1].ColumnName)
	assert.Empty(t, cols[ooh])
}

func TestSchemaRepository_FindNearest(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewSchemaRepository(tc.store.DB)

	ds := tc.createDataSource("ads", true)
	tv := tc.createTable(ds, "tv", true, strPtr("TV campaigns"), axis(0))
	ooh := tc.createTable(ds, "ooh", true, strPtr("Outdoor"), axis(1))
	disabled := tc.createTable(ds, "hidden", false, strPtr("Hidden"), axis(0))

	tc.createColumn(tv, "spend", "numeric", true, axis(0))
	tc.createColumn(ooh, "city", "text", true, axis(1))
	tc.createColumn(ooh, "secret", "text", false, axis(0))
	tc.createColumn(disabled, "x", "text", true, axis(0))

	cols, err := repo.FindNearestColumns(tc.ctx, ds, axis(0), 5)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "spend", cols[0].Column.ColumnName)
	assert.Equal(t, "tv", cols[0].TableName)
	assert.InDelta(t, 0.0, cols[0].Distance, 1e-6)
	assert.Equal(t, "city", cols[1].Column.ColumnName)

	tables, err := repo.FindNearestTables(tc.ctx, ds, axis(1), 1)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "ooh", tables[0].Table.TableName)

	none, err := repo.FindNearestColumns(tc.ctx, ds, axis(0), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchemaRepository_Indexing(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewSchemaRepository(tc.store.DB)

	ds := tc.createDataSource("ads", true)
	tv := tc.createTable(ds, "tv", true, strPtr("TV campaigns"), nil)
	tc.createTable(ds, "ooh", true, nil, nil)
	spend := tc.createColumn(tv, "spend", "numeric", true, nil)
	tc.createColumn(tv, "channel", "text", true, axis(2))

	pending, err := repo.ListColumnsForIndexing(tc.ctx, ds, false)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "spend", pending[0].Column.ColumnName)
	assert.Equal(t, "tv", pending[0].TableName)

	everything, err := repo.ListColumnsForIndexing(tc.ctx, ds, true)
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	tables, err := repo.ListTablesForIndexing(tc.ctx, ds, false)
	require.NoError(t, err)
	require.Len(t, tables, 1, "undescribed tables are not indexed")
	assert.Equal(t, "tv", tables[0].TableName)

	require.NoError(t, repo.UpdateColumnEmbedding(tc.ctx, spend, axis(3)))
	require.NoError(t, repo.UpdateTableEmbedding(tc.ctx, tv, axis(3)))

	pending, err = repo.ListColumnsForIndexing(tc.ctx, ds, false)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = repo.UpdateColumnEmbedding(tc.ctx, uuid.New(), axis(3))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDataSourceRepository(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewDataSourceRepository(tc.store.DB)

	active := tc.createDataSource("warehouse", true)
	tc.createDataSource("archive", false)

	sources, err := repo.ListActive(tc.ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, active, sources[0].ID)
	assert.Equal(t, "secret", sources[0].Password)

	all, err := repo.List(tc.ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "archive", all[0].Name)

	got, err := repo.GetByName(tc.ctx, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, active, got.ID)

	_, err = repo.GetByID(tc.ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConversationRepository_RecentTurnsChronological(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewConversationRepository(tc.store.DB)
	session := uuid.New()

	require.NoError(t, repo.EnsureSession(tc.ctx, session, "budget"))
	require.NoError(t, repo.EnsureSession(tc.ctx, session, "budget"))

	base := time.Now().Add(-time.Hour)
	for i, turn := range []models.ConversationTurn{
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1", SQL: "SELECT 1"},
		{Role: models.RoleUser, Content: "q2"},
		{Role: models.RoleAssistant, Content: "a2", SQL: "SELECT 2"},
	} {
		turn.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.AppendTurn(tc.ctx, session, turn))
	}

	turns, err := repo.RecentTurns(tc.ctx, session, 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "a1", turns[0].Content)
	assert.Equal(t, "SELECT 1", turns[0].SQL)
	assert.Equal(t, "q2", turns[1].Content)
	assert.Equal(t, "", turns[1].SQL)
	assert.Equal(t, "a2", turns[2].Content)

	empty, err := repo.RecentTurns(tc.ctx, uuid.New(), 6)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOutcomeRepository_PersistOnce(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewOutcomeRepository(tc.store.DB)
	session := uuid.New()
	require.NoError(t, NewConversationRepository(tc.store.DB).EnsureSession(tc.ctx, session, ""))

	sql := "SELECT channel, SUM(spend) FROM tv GROUP BY channel"
	outcome := &models.PipelineOutcome{
		SessionID:  session,
		AttemptID:  "attempt-1",
		Question:   "spend by channel",
		SQL:        &sql,
		RowCount:   2,
		Chart:      &models.Chart{Kind: models.ChartBar, Title: "Spend", X: []any{"a", "b"}, Y: []float64{1, 2}},
		Summary:    "Two channels.",
		FinalState: "DONE",
	}
	require.NoError(t, repo.Persist(tc.ctx, outcome))

	got, err := repo.GetByAttempt(tc.ctx, session, "attempt-1")
	require.NoError(t, err)
	require.NotNil(t, got.SQL)
	assert.Equal(t, sql, *got.SQL)
	require.NotNil(t, got.Chart)
	assert.Equal(t, models.ChartBar, got.Chart.Kind)
	assert.Equal(t, []float64{1, 2}, got.Chart.Y)
	assert.Nil(t, got.Error)

	dup := *outcome
	dup.ID = uuid.Nil
	err = repo.Persist(tc.ctx, &dup)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	failed := &models.PipelineOutcome{
		SessionID:  session,
		AttemptID:  "attempt-2",
		Question:   "drop it",
		Error:      &models.OutcomeError{Kind: "forbidden_keyword", Message: "forbidden keyword DROP"},
		FinalState: "ERROR",
	}
	require.NoError(t, repo.Persist(tc.ctx, failed))

	list, err := repo.ListBySession(tc.ctx, session)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[1].SQL)
	assert.Nil(t, list[1].Chart)
	require.NotNil(t, list[1].Error)
	assert.Equal(t, "forbidden_keyword", list[1].Error.Kind)

	_, err = repo.GetByAttempt(tc.ctx, session, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
