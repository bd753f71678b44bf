package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

// indexBatchSize bounds texts per embedding request.
const indexBatchSize = 32

// IndexStats reports what one indexing run wrote.
type IndexStats struct {
	Columns int
	Tables  int
}

// SchemaIndexer computes and stores embeddings for curated columns and
// described tables so retrieval can rank them by similarity.
type SchemaIndexer struct {
	schemaRepo repositories.SchemaRepository
	embeddings EmbeddingService
	logger     *zap.Logger
}

func NewSchemaIndexer(schemaRepo repositories.SchemaRepository, embeddings EmbeddingService, logger *zap.Logger) *SchemaIndexer {
	return &SchemaIndexer{
		schemaRepo: schemaRepo,
		embeddings: embeddings,
		logger:     logger.Named("indexer"),
	}
}

// ColumnEmbeddingText is the text embedded for a column. Undescribed columns
// are embedded by name.
func ColumnEmbeddingText(tableName, columnName, description string) string {
	if description == "" {
		description = columnName
	}
	return fmt.Sprintf("Table %s, column %s: %s", tableName, columnName, description)
}

// TableEmbeddingText is the text embedded for a described table.
func TableEmbeddingText(tableName, description string) string {
	return fmt.Sprintf("Table %s: %s", tableName, description)
}

// Reindex embeds enabled columns and described tables of the data source
// (uuid.Nil for all). Rows that already carry an embedding are skipped
// unless force is set.
func (ix *SchemaIndexer) Reindex(ctx context.Context, dataSourceID uuid.UUID, force bool) (*IndexStats, error) {
	stats := &IndexStats{}

	columns, err := ix.schemaRepo.ListColumnsForIndexing(ctx, dataSourceID, force)
	if err != nil {
		return nil, fmt.Errorf("list columns for indexing: %w", err)
	}
	for start := 0; start < len(columns); start += indexBatchSize {
		batch := columns[start:min(start+indexBatchSize, len(columns))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = ColumnEmbeddingText(c.TableName, c.Column.ColumnName, c.Column.DescriptionText())
		}
		vecs, err := ix.embeddings.EmbedBatch(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed columns: %w", err)
		}
		for i, c := range batch {
			if err := ix.schemaRepo.UpdateColumnEmbedding(ctx, c.Column.ID, vecs[i]); err != nil {
				return stats, fmt.Errorf("store embedding for %s.%s: %w", c.TableName, c.Column.ColumnName, err)
			}
			stats.Columns++
		}
	}

	tables, err := ix.schemaRepo.ListTablesForIndexing(ctx, dataSourceID, force)
	if err != nil {
		return stats, fmt.Errorf("list tables for indexing: %w", err)
	}
	for start := 0; start < len(tables); start += indexBatchSize {
		batch := tables[start:min(start+indexBatchSize, len(tables))]
		texts := make([]string, len(batch))
		for i, t := range batch {
			texts[i] = TableEmbeddingText(t.TableName, t.DescriptionText())
		}
		vecs, err := ix.embeddings.EmbedBatch(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed tables: %w", err)
		}
		for i, t := range batch {
			if err := ix.schemaRepo.UpdateTableEmbedding(ctx, t.ID, vecs[i]); err != nil {
				return stats, fmt.Errorf("store embedding for %s: %w", t.TableName, err)
			}
			stats.Tables++
		}
	}

	ix.logger.Info("Schema indexed",
		zap.Int("columns", stats.Columns),
		zap.Int("tables", stats.Tables),
		zap.Bool("force", force))
	return stats, nil
}
