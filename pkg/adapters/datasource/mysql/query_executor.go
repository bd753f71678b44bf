package mysql

import (
	"context"
	"errors"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// MySQL server error numbers.
const (
	errAccessDenied     uint16 = 1045
	errBadDB            uint16 = 1049
	errServerShutdown   uint16 = 1053
	errServerGone       uint16 = 2006
	errServerLost       uint16 = 2013
	errExecutionTimeout uint16 = 3024
)

// QueryExecutor runs queries against MySQL through gorm's raw SQL path.
type QueryExecutor struct {
	config *datasource.Config
	db     *gorm.DB
}

// NewQueryExecutor opens and verifies a MySQL connection.
func NewQueryExecutor(ctx context.Context, cfg *datasource.Config) (*QueryExecutor, error) {
	db, err := datasource.OpenGorm(ctx, gormmysql.New(gormmysql.Config{
		DSN:                       buildDSN(cfg),
		SkipInitializeWithVersion: true,
	}), cfg)
	if err != nil {
		return nil, classifyError("", err)
	}
	return &QueryExecutor{config: cfg, db: db}, nil
}

// Query runs sqlQuery and collects at most limit rows.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	result, err := datasource.QueryGorm(ctx, e.db, sqlQuery, limit, mapMySQLType)
	if err != nil {
		return nil, classifyError(sqlQuery, err)
	}
	return result, nil
}

// TestConnection verifies the server answers and the expected database is selected.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	var currentDB string
	if err := e.db.WithContext(ctx).Raw("SELECT DATABASE()").Scan(&currentDB).Error; err != nil {
		return classifyError("SELECT DATABASE()", datasource.ClassifySQLError("SELECT DATABASE()", err))
	}
	if !strings.EqualFold(currentDB, e.config.Database) {
		return apperrors.Configuration("connected to wrong database: expected %q but connected to %q", e.config.Database, currentDB)
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

// classifyError refines the generic classification with MySQL error numbers.
func classifyError(sqlQuery string, err error) error {
	cause := err
	if appErr, ok := apperrors.As(err); ok && appErr.Cause != nil {
		cause = appErr.Cause
	}

	if errors.Is(cause, mysqldrv.ErrInvalidConn) {
		return apperrors.ConnectionFailed(sqlQuery, cause)
	}

	var myErr *mysqldrv.MySQLError
	if !errors.As(cause, &myErr) {
		return err
	}
	switch myErr.Number {
	case errAccessDenied, errBadDB:
		return &apperrors.Error{
			Kind:    apperrors.KindConfiguration,
			Message: "MySQL rejected the login",
			Cause:   cause,
		}
	case errServerShutdown, errServerGone, errServerLost:
		return apperrors.ConnectionFailed(sqlQuery, cause)
	default:
		// errExecutionTimeout and friends: the server ran and rejected the query.
		return apperrors.QueryFailed(sqlQuery, cause)
	}
}

func mapMySQLType(name string) string {
	name = strings.ToUpper(name)
	switch name {
	case "INT", "MEDIUMINT":
		return "INTEGER"
	case "DECIMAL":
		return "NUMERIC"
	case "DOUBLE":
		return "DOUBLE PRECISION"
	case "DATETIME":
		return "TIMESTAMP"
	default:
		return name
	}
}
