package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	glebarez "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// seedDatabase writes a small advertising dataset to a fresh file.
func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ads.db")

	db, err := gorm.Open(glebarez.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE ooh (city TEXT, spend REAL)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO ooh (city, spend) VALUES ('Moscow', 120.5), ('Kazan', 80), ('Perm', 10)`).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return path
}

func newExecutor(t *testing.T, path string, timeout time.Duration) *QueryExecutor {
	t.Helper()
	exec, err := NewQueryExecutor(context.Background(), &datasource.Config{
		Database:         path,
		StatementTimeout: timeout,
		ConnectTimeout:   time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	return exec
}

func TestQueryExecutor_Query(t *testing.T) {
	exec := newExecutor(t, seedDatabase(t), 5*time.Second)
	ctx := context.Background()

	require.NoError(t, exec.TestConnection(ctx))

	result, err := exec.Query(ctx, "SELECT city, spend FROM ooh ORDER BY spend DESC", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"city", "spend"}, result.ColumnNames())
	assert.Equal(t, "TEXT", result.Columns[0].Type)
	assert.Equal(t, "Moscow", result.Rows[0]["city"])
	assert.Equal(t, 120.5, result.Rows[0]["spend"])
}

func TestQueryExecutor_SelfJoinKeepsBothColumns(t *testing.T) {
	exec := newExecutor(t, seedDatabase(t), 5*time.Second)

	result, err := exec.Query(context.Background(),
		"SELECT a.city, b.city FROM ooh a JOIN ooh b ON b.spend < a.spend WHERE a.city = 'Kazan'", 10)
	require.NoError(t, err)

	require.Equal(t, 1, result.RowCount)
	assert.Equal(t, []string{"city", "city_2"}, result.ColumnNames())
	assert.Equal(t, "Kazan", result.Rows[0]["city"])
	assert.Equal(t, "Perm", result.Rows[0]["city_2"])
}

func TestQueryExecutor_RejectsWrites(t *testing.T) {
	exec := newExecutor(t, seedDatabase(t), 5*time.Second)

	_, err := exec.Query(context.Background(), "INSERT INTO ooh (city, spend) VALUES ('Omsk', 1)", 10)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindQueryExecution, appErr.Kind)
	assert.False(t, appErr.Connectivity)
}

func TestQueryExecutor_SyntaxErrorCarriesSQL(t *testing.T) {
	exec := newExecutor(t, seedDatabase(t), 5*time.Second)

	_, err := exec.Query(context.Background(), "SELEC city FROM ooh", 10)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "SELEC city FROM ooh", appErr.SQL)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestQueryExecutor_StatementTimeout(t *testing.T) {
	exec := newExecutor(t, seedDatabase(t), 50*time.Millisecond)

	slow := `WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 100000000)
		SELECT COUNT(*) FROM n`
	_, err := exec.Query(context.Background(), slow, 10)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindQueryExecution, appErr.Kind)
	assert.False(t, appErr.Connectivity)
	assert.Contains(t, appErr.Error(), "statement timeout")
}

func TestNewQueryExecutor_MissingFile(t *testing.T) {
	_, err := NewQueryExecutor(context.Background(), &datasource.Config{
		Database: filepath.Join(t.TempDir(), "missing.db"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
}
