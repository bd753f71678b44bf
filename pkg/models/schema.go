package models

import (
	"time"

	"github.com/google/uuid"
)

// CuratedTable is a table from a data source that curators may enable for
// question answering. Only enabled tables are retrieval candidates.
type CuratedTable struct {
	ID           uuid.UUID `json:"id"`
	DataSourceID uuid.UUID `json:"data_source_id"`
	TableName    string    `json:"table_name"`
	Description  *string   `json:"description,omitempty"`
	IsEnabled    bool      `json:"is_enabled"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Columns is populated on demand with the table's enabled columns.
	Columns []CuratedColumn `json:"columns,omitempty"`
}

// DescriptionText returns the description or "" when none was curated.
func (t *CuratedTable) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

// CuratedColumn is a column of a CuratedTable.
type CuratedColumn struct {
	ID           uuid.UUID `json:"id"`
	TableID      uuid.UUID `json:"table_id"`
	ColumnName   string    `json:"column_name"`
	DataType     string    `json:"data_type"`
	Description  *string   `json:"description,omitempty"`
	IsMetric     bool      `json:"is_metric"`
	IsDimension  bool      `json:"is_dimension"`
	IsEnabled    bool      `json:"is_enabled"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *CuratedColumn) DescriptionText() string {
	if c.Description == nil {
		return ""
	}
	return *c.Description
}

// ColumnMatch is a column returned by nearest-neighbour search together with
// the name of its owning table and the cosine distance to the query vector.
type ColumnMatch struct {
	Column    CuratedColumn
	TableName string
	Distance  float64
}

// TableMatch is a table returned by nearest-neighbour search.
type TableMatch struct {
	Table    CuratedTable
	Distance float64
}
