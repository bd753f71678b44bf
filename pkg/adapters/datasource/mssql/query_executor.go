package mssql

import (
	"context"
	"database/sql"
	"errors"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// SQL Server error numbers that mean the login itself was rejected.
const (
	errLoginFailed      int32 = 18456
	errCannotOpenDB     int32 = 4060
	errDatabaseNotFound int32 = 911
)

// QueryExecutor provides SQL Server query execution over one connection.
type QueryExecutor struct {
	config *datasource.Config
	db     *sql.DB
}

// NewQueryExecutor opens and verifies a SQL Server connection.
func NewQueryExecutor(ctx context.Context, cfg *datasource.Config) (*QueryExecutor, error) {
	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, apperrors.Configuration("open SQL Server connection: %v", err)
	}
	if err := datasource.ConnectSQL(ctx, db, cfg); err != nil {
		return nil, classifyLoginError(err)
	}
	return &QueryExecutor{config: cfg, db: db}, nil
}

// Query runs sqlQuery under the statement timeout. SQL Server has no
// session-level statement timeout, so the deadline is enforced client-side.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return datasource.WithClientDeadline(ctx, e.config.StatementTimeout, sqlQuery,
		func(ctx context.Context) (*datasource.QueryExecutionResult, error) {
			return datasource.RunSQLQuery(ctx, e.db, sqlQuery, limit, mapSQLServerType)
		})
}

// TestConnection verifies the server answers and the expected database is selected.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return datasource.ClassifyConnectError(err)
	}
	var currentDB string
	if err := e.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return datasource.ClassifySQLError("SELECT DB_NAME()", err)
	}
	if currentDB != e.config.Database {
		return apperrors.Configuration("connected to wrong database: expected %q but connected to %q", e.config.Database, currentDB)
	}
	return nil
}

// Close closes the connection.
func (e *QueryExecutor) Close() error {
	return e.db.Close()
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)

// classifyLoginError turns rejected logins into configuration errors even when
// the driver surfaces them in a way the generic classifier reads as transport.
func classifyLoginError(err error) error {
	var sqlErr mssqldb.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case errLoginFailed, errCannotOpenDB, errDatabaseNotFound:
			return &apperrors.Error{
				Kind:    apperrors.KindConfiguration,
				Message: "SQL Server rejected the login",
				Cause:   err,
			}
		}
	}
	return err
}
