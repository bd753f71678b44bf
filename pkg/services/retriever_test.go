package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

const testDimensions = 4

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		TopColumns:     12,
		TopTables:      3,
		MaxTables:      3,
		FallbackTables: 3,
		MinTokenLength: 4,
	}
}

func newTestRetriever(repo *mockSchemaRepository, logger *zap.Logger) SchemaRetriever {
	embedder := llm.NewMockEmbedder()
	embedder.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vecOf(testDimensions, 1), nil
	}
	embeddings := NewEmbeddingService(embedder, nil, testDimensions, logger)
	return NewSchemaRetriever(repo, embeddings, testRetrievalConfig(), logger)
}

func withColumns(tables ...*models.CuratedTable) map[uuid.UUID][]models.CuratedColumn {
	out := make(map[uuid.UUID][]models.CuratedColumn)
	for _, t := range tables {
		out[t.ID] = t.Columns
	}
	return out
}

func tableNames(tables []*models.CuratedTable) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.TableName
	}
	return names
}

func TestSchemaRetriever_FallsBackWhenNothingMatches(t *testing.T) {
	ooh := testTable("ooh", "Outdoor advertising by city", "city", "spend")
	tv := testTable("tv", "TV ratings by channel", "channel", "grp")
	repo := &mockSchemaRepository{tables: []*models.CuratedTable{ooh, tv}, columns: withColumns(ooh, tv)}

	core, logs := observer.New(zapcore.WarnLevel)
	retriever := newTestRetriever(repo, zap.New(core))

	tables, err := retriever.FindRelevantTables(context.Background(), uuid.Nil, "Show daily click trend for January")
	require.NoError(t, err)
	assert.Equal(t, []string{"ooh", "tv"}, tableNames(tables))
	assert.Len(t, tables[0].Columns, 2)
	assert.Equal(t, 1, logs.FilterMessageSnippet("degraded").Len())
}

func TestSchemaRetriever_NoEnabledTables(t *testing.T) {
	retriever := newTestRetriever(&mockSchemaRepository{}, zap.NewNop())

	_, err := retriever.FindRelevantTables(context.Background(), uuid.Nil, "anything")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
}

func TestSchemaRetriever_TableSimilarityWinsOverColumnSimilarity(t *testing.T) {
	ads := testTable("ads", "ads data", "clicks")
	tv := testTable("tv", "tv data", "grp")
	ooh := testTable("ooh", "ooh data", "spend")

	repo := &mockSchemaRepository{
		tables:  []*models.CuratedTable{ads, ooh, tv},
		columns: withColumns(ads, ooh, tv),
		nearestColumns: []models.ColumnMatch{
			{Column: ads.Columns[0], TableName: "ads", Distance: 0.10},
			{Column: tv.Columns[0], TableName: "tv", Distance: 0.30},
		},
		nearestTables: []models.TableMatch{
			{Table: *tv, Distance: 0.05},
			{Table: *ooh, Distance: 0.40},
		},
	}

	tables, err := newTestRetriever(repo, zap.NewNop()).FindRelevantTables(context.Background(), uuid.Nil, "grp by channel")
	require.NoError(t, err)
	assert.Equal(t, []string{"tv", "ads", "ooh"}, tableNames(tables))
	assert.Equal(t, 12, repo.lastColumnK)
	assert.Equal(t, 3, repo.lastTableK)
}

func TestSchemaRetriever_CapsSelection(t *testing.T) {
	var all []*models.CuratedTable
	var matches []models.ColumnMatch
	for i, name := range []string{"a1", "a2", "a3", "a4", "a5"} {
		tbl := testTable(name, name+" data", "x")
		all = append(all, tbl)
		matches = append(matches, models.ColumnMatch{Column: tbl.Columns[0], Distance: float64(i) / 10})
	}
	repo := &mockSchemaRepository{tables: all, columns: withColumns(all...), nearestColumns: matches}

	tables, err := newTestRetriever(repo, zap.NewNop()).FindRelevantTables(context.Background(), uuid.Nil, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, tableNames(tables))
}

func TestSchemaRetriever_KeywordFallback(t *testing.T) {
	orders := testTable("order_items", "order_items data", "sku")
	tv := testTable("tv", "tv data", "grp")
	campaigns := testTable("campaigns", "campaigns data", "name")
	repo := &mockSchemaRepository{
		tables:  []*models.CuratedTable{campaigns, orders, tv},
		columns: withColumns(campaigns, orders, tv),
	}

	tables, err := newTestRetriever(repo, zap.NewNop()).FindRelevantTables(context.Background(), uuid.Nil, "How many orders per campaign?")
	require.NoError(t, err)
	assert.Equal(t, []string{"campaigns", "order_items"}, tableNames(tables))
}

func TestSchemaRetriever_IgnoresMatchesOutsideEnabledSet(t *testing.T) {
	tv := testTable("tv", "tv data", "grp")
	disabled := testTable("secrets", "secrets data", "password")
	repo := &mockSchemaRepository{
		tables:        []*models.CuratedTable{tv},
		columns:       withColumns(tv),
		nearestTables: []models.TableMatch{{Table: *disabled, Distance: 0.01}},
	}

	tables, err := newTestRetriever(repo, zap.NewNop()).FindRelevantTables(context.Background(), uuid.Nil, "tv ratings")
	require.NoError(t, err)
	assert.Equal(t, []string{"tv"}, tableNames(tables))
}

func TestSchemaRetriever_OnlyDescribedTablesAreCandidates(t *testing.T) {
	tv := testTable("tv", "TV ratings by channel", "grp")
	raw := testTable("tv_raw", "", "grp")
	blank := testTable("tv_staging", "   ", "grp")

	tests := []struct {
		name  string
		repo  *mockSchemaRepository
		query string
	}{
		{
			name: "column similarity",
			repo: &mockSchemaRepository{
				nearestColumns: []models.ColumnMatch{
					{Column: raw.Columns[0], TableName: "tv_raw", Distance: 0.01},
					{Column: tv.Columns[0], TableName: "tv", Distance: 0.20},
				},
			},
			query: "grp",
		},
		{
			name: "table similarity",
			repo: &mockSchemaRepository{
				nearestTables: []models.TableMatch{{Table: *blank, Distance: 0.01}},
			},
			query: "ratings",
		},
		{name: "keyword", repo: &mockSchemaRepository{}, query: "tv_raw and tv_staging numbers"},
		{name: "first enabled fallback", repo: &mockSchemaRepository{}, query: "clicks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.repo.tables = []*models.CuratedTable{tv, raw, blank}
			tt.repo.columns = withColumns(tv, raw, blank)

			tables, err := newTestRetriever(tt.repo, zap.NewNop()).FindRelevantTables(context.Background(), uuid.Nil, tt.query)
			require.NoError(t, err)
			assert.Equal(t, []string{"tv"}, tableNames(tables))
		})
	}
}

func TestSchemaRetriever_NoDescribedTables(t *testing.T) {
	raw := testTable("tv_raw", "", "grp")
	repo := &mockSchemaRepository{tables: []*models.CuratedTable{raw}, columns: withColumns(raw)}

	_, err := newTestRetriever(repo, zap.NewNop()).FindRelevantTables(context.Background(), uuid.Nil, "grp")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
}

func TestSchemaRetriever_EmbeddingFailureIsRetryable(t *testing.T) {
	tv := testTable("tv", "tv data", "grp")
	embedder := llm.NewMockEmbedder()
	embedder.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, apperrors.Embedding("connection refused", nil)
	}
	retriever := NewSchemaRetriever(
		&mockSchemaRepository{tables: []*models.CuratedTable{tv}},
		NewEmbeddingService(embedder, nil, testDimensions, zap.NewNop()),
		testRetrievalConfig(), zap.NewNop())

	_, err := retriever.FindRelevantTables(context.Background(), uuid.Nil, "tv")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestQuestionTokens(t *testing.T) {
	assert.Equal(t, []string{"show", "daily", "click", "trend", "january"},
		questionTokens("Show daily click trend for January", 4))
	assert.Equal(t, []string{"динамика", "показов", "дням"}, questionTokens("Динамика показов по дням?", 4))
	assert.Empty(t, questionTokens("a bc def", 4))
}
