package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// OpenGorm opens a single-connection gorm handle and verifies it within the
// connect timeout. Only the raw-SQL path of gorm is used; target schemas are
// never migrated.
func OpenGorm(ctx context.Context, dialector gorm.Dialector, cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, ClassifyConnectError(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from gorm: %w", err)
	}
	if err := ConnectSQL(ctx, sqlDB, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// QueryGorm runs a raw statement through gorm and collects the rows.
func QueryGorm(ctx context.Context, db *gorm.DB, sqlQuery string, limit int, mapType TypeMapper) (*QueryExecutionResult, error) {
	rows, err := db.WithContext(ctx).Raw(sqlQuery).Rows()
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

// WithClientDeadline runs fn under timeout for backends that cannot enforce a
// statement timeout server-side. Expiry of that deadline, as opposed to the
// caller's context, is reported as a terminal query failure.
func WithClientDeadline(
	ctx context.Context,
	timeout time.Duration,
	sqlQuery string,
	fn func(ctx context.Context) (*QueryExecutionResult, error),
) (*QueryExecutionResult, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(queryCtx)
	if err != nil && ctx.Err() == nil && errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
		return nil, apperrors.QueryFailed(sqlQuery, fmt.Errorf("statement timeout after %s: %w", timeout, context.DeadlineExceeded))
	}
	return result, err
}
