package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

// SchemaRetriever selects the curated tables relevant to a question.
type SchemaRetriever interface {
	// FindRelevantTables returns an ordered, non-empty set of enabled and
	// described tables with their enabled columns attached. It fails with a
	// configuration error only when no such table exists.
	FindRelevantTables(ctx context.Context, dataSourceID uuid.UUID, question string) ([]*models.CuratedTable, error)
}

type schemaRetriever struct {
	schemaRepo repositories.SchemaRepository
	embeddings EmbeddingService
	cfg        config.RetrievalConfig
	logger     *zap.Logger
}

func NewSchemaRetriever(
	schemaRepo repositories.SchemaRepository,
	embeddings EmbeddingService,
	cfg config.RetrievalConfig,
	logger *zap.Logger,
) SchemaRetriever {
	return &schemaRetriever{
		schemaRepo: schemaRepo,
		embeddings: embeddings,
		cfg:        cfg,
		logger:     logger.Named("retriever"),
	}
}

var _ SchemaRetriever = (*schemaRetriever)(nil)

func (r *schemaRetriever) FindRelevantTables(ctx context.Context, dataSourceID uuid.UUID, question string) ([]*models.CuratedTable, error) {
	all, err := r.schemaRepo.ListEnabledTables(ctx, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("list enabled tables: %w", err)
	}
	enabled := describedTables(all)
	if len(enabled) == 0 {
		return nil, apperrors.Configuration("no tables are enabled and described for question answering; curate tables first")
	}
	if skipped := len(all) - len(enabled); skipped > 0 {
		r.logger.Debug("Skipping enabled tables without a description", zap.Int("tables", skipped))
	}

	selected, err := r.bySimilarity(ctx, dataSourceID, question, enabled)
	if err != nil {
		return nil, err
	}

	if len(selected) == 0 {
		selected = r.byKeyword(question, enabled)
		if len(selected) > 0 {
			r.logger.Info("No similarity matches, using keyword matches",
				zap.Int("tables", len(selected)))
		}
	}

	if len(selected) == 0 {
		n := min(r.cfg.FallbackTables, len(enabled))
		selected = enabled[:max(n, 1)]
		r.logger.Warn("Schema retrieval degraded: no similarity or keyword match, using first enabled tables",
			zap.Int("tables", len(selected)))
	}

	if len(selected) > r.cfg.MaxTables {
		selected = selected[:r.cfg.MaxTables]
	}
	return r.attachColumns(ctx, selected)
}

// describedTables keeps the tables curated with a non-blank description.
func describedTables(tables []*models.CuratedTable) []*models.CuratedTable {
	out := make([]*models.CuratedTable, 0, len(tables))
	for _, t := range tables {
		if strings.TrimSpace(t.DescriptionText()) != "" {
			out = append(out, t)
		}
	}
	return out
}

type rankedTable struct {
	table    *models.CuratedTable
	distance float64
	order    int
}

// bySimilarity ranks tables by the best of their column matches, overridden
// by the table's own distance when the table matched directly.
func (r *schemaRetriever) bySimilarity(ctx context.Context, dataSourceID uuid.UUID, question string, enabled []*models.CuratedTable) ([]*models.CuratedTable, error) {
	vec, err := r.embeddings.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	columns, err := r.schemaRepo.FindNearestColumns(ctx, dataSourceID, vec, r.cfg.TopColumns)
	if err != nil {
		return nil, fmt.Errorf("find nearest columns: %w", err)
	}
	tables, err := r.schemaRepo.FindNearestTables(ctx, dataSourceID, vec, r.cfg.TopTables)
	if err != nil {
		return nil, fmt.Errorf("find nearest tables: %w", err)
	}

	byID := make(map[uuid.UUID]*models.CuratedTable, len(enabled))
	for _, t := range enabled {
		byID[t.ID] = t
	}

	ranked := make(map[uuid.UUID]*rankedTable)
	for _, m := range columns {
		t, ok := byID[m.Column.TableID]
		if !ok {
			continue
		}
		if _, seen := ranked[t.ID]; !seen {
			ranked[t.ID] = &rankedTable{table: t, distance: m.Distance, order: len(ranked)}
		}
	}
	for _, m := range tables {
		t, ok := byID[m.Table.ID]
		if !ok {
			continue
		}
		if rt, seen := ranked[t.ID]; seen {
			rt.distance = m.Distance
		} else {
			ranked[t.ID] = &rankedTable{table: t, distance: m.Distance, order: len(ranked)}
		}
	}

	list := make([]*rankedTable, 0, len(ranked))
	for _, rt := range ranked {
		list = append(list, rt)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].distance != list[j].distance {
			return list[i].distance < list[j].distance
		}
		return list[i].order < list[j].order
	})

	out := make([]*models.CuratedTable, len(list))
	for i, rt := range list {
		out[i] = rt.table
	}
	return out, nil
}

// byKeyword matches question tokens against table names. Tokens are also
// tried in singular form so "orders" finds an "order_items" table.
func (r *schemaRetriever) byKeyword(question string, enabled []*models.CuratedTable) []*models.CuratedTable {
	tokens := questionTokens(question, r.cfg.MinTokenLength)
	if len(tokens) == 0 {
		return nil
	}

	var out []*models.CuratedTable
	for _, t := range enabled {
		name := strings.ToLower(t.TableName)
		for _, tok := range tokens {
			if strings.Contains(name, tok) || strings.Contains(name, inflection.Singular(tok)) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func questionTokens(question string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minLen || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

func (r *schemaRetriever) attachColumns(ctx context.Context, tables []*models.CuratedTable) ([]*models.CuratedTable, error) {
	ids := make([]uuid.UUID, len(tables))
	for i, t := range tables {
		ids[i] = t.ID
	}
	columns, err := r.schemaRepo.ListEnabledColumns(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list enabled columns: %w", err)
	}

	out := make([]*models.CuratedTable, len(tables))
	for i, t := range tables {
		tc := *t
		tc.Columns = columns[t.ID]
		out[i] = &tc
	}
	return out, nil
}
