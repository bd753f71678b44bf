package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// TypeMapper maps a driver's DatabaseTypeName to the name reported in ColumnInfo.
type TypeMapper func(databaseTypeName string) string

// UpperTypeName is the default TypeMapper.
func UpperTypeName(name string) string {
	return strings.ToUpper(name)
}

// CollectRows reads at most limit rows from a database/sql result set.
// Drivers that return DECIMAL as text get float64 values; other []byte
// values of non-binary columns are returned as strings.
func CollectRows(rows *sql.Rows, limit int, mapType TypeMapper) (*QueryExecutionResult, error) {
	if mapType == nil {
		mapType = UpperTypeName
	}

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columnNames = UniqueColumnNames(columnNames)
	columns := make([]ColumnInfo, len(columnNames))
	for i, name := range columnNames {
		columns[i] = ColumnInfo{Name: name, Type: mapType(columnTypes[i].DatabaseTypeName())}
	}

	limit = EffectiveLimit(limit)
	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if len(resultRows) >= limit {
			break
		}

		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = convertBytes(b, columns[i].Type)
			}
			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// UniqueColumnNames renames repeated result column names to name_2, name_3
// and so on, so every column keeps its own key in a row map. A suffix never
// takes a name that another column already carries.
func UniqueColumnNames(names []string) []string {
	original := make(map[string]bool, len(names))
	for _, n := range names {
		original[n] = true
	}
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, n := range names {
		name := n
		for k := 2; used[name] || (name != n && original[name]); k++ {
			name = fmt.Sprintf("%s_%d", n, k)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func convertBytes(b []byte, typeName string) any {
	switch {
	case isBinaryType(typeName):
		return b
	case isIntegerType(typeName):
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	case isDecimalType(typeName):
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}

// isIntegerType covers the integer names drivers report when they deliver
// values as text, including MySQL's UNSIGNED variants.
func isIntegerType(typeName string) bool {
	name := strings.TrimPrefix(strings.ToUpper(typeName), "UNSIGNED ")
	switch name {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "INT2", "INT4", "INT8", "YEAR":
		return true
	}
	return false
}

func isDecimalType(typeName string) bool {
	switch strings.ToUpper(typeName) {
	case "DECIMAL", "NUMERIC", "MONEY", "NEWDECIMAL", "FLOAT", "DOUBLE", "REAL":
		return true
	}
	return false
}

func isBinaryType(typeName string) bool {
	switch strings.ToUpper(typeName) {
	case "BLOB", "BINARY", "VARBINARY", "IMAGE", "BYTEA", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		return true
	}
	return false
}

// RunSQLQuery executes sqlQuery on db and classifies the failure.
func RunSQLQuery(ctx context.Context, db *sql.DB, sqlQuery string, limit int, mapType TypeMapper) (*QueryExecutionResult, error) {
	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, ClassifySQLError(sqlQuery, err)
	}
	defer rows.Close()

	result, err := CollectRows(rows, limit, mapType)
	if err != nil {
		return nil, ClassifySQLError(sqlQuery, err)
	}
	return result, nil
}

// ClassifySQLError splits database/sql failures into connectivity failures
// (the query never reached the server) and query failures.
func ClassifySQLError(sqlQuery string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if IsConnectivityError(err) {
		return apperrors.ConnectionFailed(sqlQuery, err)
	}
	return apperrors.QueryFailed(sqlQuery, err)
}

// IsConnectivityError reports errors raised by the transport rather than the server.
func IsConnectivityError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// ConnectSQL pings db within the connect timeout. db is closed on failure.
func ConnectSQL(ctx context.Context, db *sql.DB, cfg *Config) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return ClassifyConnectError(err)
	}
	return nil
}

// ClassifyConnectError treats transport failures and connect timeouts as
// retryable connectivity and everything else (credentials, unknown database)
// as a terminal configuration problem.
func ClassifyConnectError(err error) error {
	if IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ConnectionFailed("", err)
	}
	return &apperrors.Error{
		Kind:    apperrors.KindConfiguration,
		Message: "could not open target database connection",
		Cause:   err,
	}
}
