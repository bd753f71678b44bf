package datasource

import (
	"context"
	"time"
)

// QueryExecutor runs guarded read queries against one target database.
// Each implementation owns a single connection opened for one pipeline
// invocation and must be closed when done.
type QueryExecutor interface {
	// Query runs sqlQuery and collects at most limit rows. The statement is
	// expected to be validated and guarded already; Query does not rewrite it.
	// Failures are classified as apperrors.ConnectionFailed or apperrors.QueryFailed.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Config is the driver-independent description of a target connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// StatementTimeout is enforced server-side where the backend supports it.
	StatementTimeout time.Duration
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// MaxQueryLimit is the hard cap on rows collected by Query.
const MaxQueryLimit = 100000

// EffectiveLimit clamps limit to (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnNames returns the result's column names in order.
func (r *QueryExecutionResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}
