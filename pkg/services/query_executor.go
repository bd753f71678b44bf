package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	sqlpkg "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// ExecutionResult is the tabular result of one guarded execution.
type ExecutionResult struct {
	// SQL is the statement actually sent, after guards were applied.
	SQL    string
	Result *datasource.QueryExecutionResult
}

// QueryExecutor runs validated statements against the execution target.
type QueryExecutor interface {
	// Execute applies the execution guards, opens a connection for this call
	// only, and runs the statement under the row limit.
	Execute(ctx context.Context, target *ExecutionTarget, query string) (*ExecutionResult, error)
}

type queryExecutor struct {
	adapters datasource.DatasourceAdapterFactory
	rowLimit int
	logger   *zap.Logger
}

func NewQueryExecutor(adapters datasource.DatasourceAdapterFactory, rowLimit int, logger *zap.Logger) QueryExecutor {
	return &queryExecutor{
		adapters: adapters,
		rowLimit: rowLimit,
		logger:   logger.Named("query-executor"),
	}
}

var _ QueryExecutor = (*queryExecutor)(nil)

func (e *queryExecutor) Execute(ctx context.Context, target *ExecutionTarget, query string) (*ExecutionResult, error) {
	guarded, err := sqlpkg.ApplyGuards(query, target.Dialect(), e.rowLimit)
	if err != nil {
		return nil, err
	}

	executor, err := e.adapters.NewQueryExecutor(ctx, target.Driver, target.Config)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok && appErr.SQL == "" {
			return nil, appErr.WithSQL(guarded)
		}
		return nil, err
	}
	defer func() {
		if cerr := executor.Close(); cerr != nil {
			e.logger.Warn("Failed to close target connection",
				zap.String("target", target.Name),
				zap.String("error", logging.SanitizeError(cerr)))
		}
	}()

	start := time.Now()
	result, err := executor.Query(ctx, guarded, e.rowLimit)
	if err != nil {
		e.logger.Info("Query failed",
			zap.String("target", target.Name),
			zap.String("sql", logging.SanitizeQuery(guarded)),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	e.logger.Debug("Query executed",
		zap.String("target", target.Name),
		zap.Int("rows", result.RowCount),
		zap.Duration("elapsed", time.Since(start)))
	return &ExecutionResult{SQL: guarded, Result: result}, nil
}
