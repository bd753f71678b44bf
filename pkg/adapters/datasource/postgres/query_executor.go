package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// QueryExecutor runs queries over a single pgx connection opened per invocation.
type QueryExecutor struct {
	config *datasource.Config
	conn   *pgx.Conn
}

// NewQueryExecutor connects to PostgreSQL. Connection failures are classified
// before they are returned.
func NewQueryExecutor(ctx context.Context, cfg *datasource.Config) (*QueryExecutor, error) {
	cc, err := connConfig(cfg)
	if err != nil {
		return nil, apperrors.Configuration("%v", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cc)
	if err != nil {
		return nil, classifyConnectError(err)
	}

	return &QueryExecutor{config: cfg, conn: conn}, nil
}

// Query runs sqlQuery and collects at most limit rows.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	rows, err := e.conn.Query(ctx, sqlQuery)
	if err != nil {
		return nil, classifyQueryError(sqlQuery, err)
	}
	defer rows.Close()

	typeMap := e.conn.TypeMap()
	fieldDescs := rows.FieldDescriptions()
	names := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		names[i] = fd.Name
	}
	names = datasource.UniqueColumnNames(names)

	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: names[i],
			Type: typeName(typeMap, fd.DataTypeOID),
		}
	}

	limit = datasource.EffectiveLimit(limit)
	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if len(resultRows) >= limit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, classifyQueryError(sqlQuery, fmt.Errorf("failed to read row values: %w", err))
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(sqlQuery, err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// TestConnection verifies the server answers and the expected database is selected.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	if err := e.conn.Ping(ctx); err != nil {
		return classifyConnectError(err)
	}

	var currentDB string
	if err := e.conn.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return classifyQueryError("SELECT current_database()", err)
	}
	if !strings.EqualFold(currentDB, e.config.Database) {
		return apperrors.Configuration("connected to wrong database: expected %q but connected to %q", e.config.Database, currentDB)
	}
	return nil
}

// Close closes the connection.
func (e *QueryExecutor) Close() error {
	if e.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return e.conn.Close(ctx)
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)

func typeName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

// normalizeValue converts pgx wire types into plain Go values so downstream
// code can detect numbers and render text without knowing about pgtype.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return v
	}
}

// classifyQueryError maps a failure during execution. Connection-class
// SQLSTATEs and transport errors are connectivity; everything the server
// rejected (syntax, permissions, statement timeout) is a query failure.
func classifyQueryError(sqlQuery string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isConnectionSQLState(pgErr.Code) {
			return apperrors.ConnectionFailed(sqlQuery, err)
		}
		return apperrors.QueryFailed(sqlQuery, err)
	}
	if pgconn.SafeToRetry(err) || datasource.IsConnectivityError(err) {
		return apperrors.ConnectionFailed(sqlQuery, err)
	}
	return apperrors.QueryFailed(sqlQuery, err)
}

func classifyConnectError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && !isConnectionSQLState(pgErr.Code) {
		// Authentication or unknown database.
		return &apperrors.Error{
			Kind:    apperrors.KindConfiguration,
			Message: "could not open target database connection",
			Cause:   err,
		}
	}
	return apperrors.ConnectionFailed("", err)
}

// isConnectionSQLState reports class 08 (connection exception) and the
// operator-intervention codes raised when the server goes away.
func isConnectionSQLState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03": // admin_shutdown, crash_shutdown, cannot_connect_now
		return true
	}
	return false
}
