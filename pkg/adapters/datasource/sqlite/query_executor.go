// Package sqlite executes queries against SQLite database files.
package sqlite

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"

	glebarez "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// QueryExecutor runs queries against a SQLite file opened read-only.
// Config.Database is the file path; host, port and credentials are ignored.
type QueryExecutor struct {
	config *datasource.Config
	db     *gorm.DB
}

// NewQueryExecutor opens the database file. A missing file is a configuration
// error rather than an empty database.
func NewQueryExecutor(ctx context.Context, cfg *datasource.Config) (*QueryExecutor, error) {
	if _, err := os.Stat(cfg.Database); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Configuration("sqlite database %q does not exist", cfg.Database)
		}
		return nil, apperrors.Configuration("sqlite database %q: %v", cfg.Database, err)
	}

	db, err := datasource.OpenGorm(ctx, glebarez.Open(buildDSN(cfg.Database)), cfg)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{config: cfg, db: db}, nil
}

// buildDSN opens the file read-only with query_only set on the connection.
func buildDSN(path string) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", "query_only(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// Query runs sqlQuery under the statement timeout, enforced client-side.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return datasource.WithClientDeadline(ctx, e.config.StatementTimeout, sqlQuery,
		func(ctx context.Context) (*datasource.QueryExecutionResult, error) {
			return datasource.QueryGorm(ctx, e.db, sqlQuery, limit, strings.ToUpper)
		})
}

// TestConnection runs a trivial query against the file.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	var one int
	if err := e.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return datasource.ClassifySQLError("SELECT 1", err)
	}
	return nil
}

// Close closes the connection.
func (e *QueryExecutor) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
