//go:build integration

package postgres

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/testhelpers"
)

// storeConfig points the executor at the shared test store.
func storeConfig(t *testing.T, statementTimeout time.Duration) *datasource.Config {
	t.Helper()
	store := testhelpers.GetStoreDB(t)

	u, err := url.Parse(store.ConnStr)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	password, _ := u.User.Password()

	return &datasource.Config{
		Host:             u.Hostname(),
		Port:             port,
		User:             u.User.Username(),
		Password:         password,
		Database:         "insights_test",
		SSLMode:          "disable",
		StatementTimeout: statementTimeout,
		ConnectTimeout:   5 * time.Second,
	}
}

func TestQueryExecutor_Query(t *testing.T) {
	ctx := context.Background()
	exec, err := NewQueryExecutor(ctx, storeConfig(t, 5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	require.NoError(t, exec.TestConnection(ctx))

	result, err := exec.Query(ctx, `
		SELECT city, spend
		FROM (VALUES ('Moscow', 120.5::numeric), ('Kazan', 80::numeric), ('Perm', 10::numeric)) AS v(city, spend)
		ORDER BY spend DESC`, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, "TEXT", result.Columns[0].Type)
	assert.Equal(t, "NUMERIC", result.Columns[1].Type)
	assert.Equal(t, "Moscow", result.Rows[0]["city"])
	assert.Equal(t, 120.5, result.Rows[0]["spend"])
}

func TestQueryExecutor_SessionIsReadOnly(t *testing.T) {
	ctx := context.Background()
	exec, err := NewQueryExecutor(ctx, storeConfig(t, 5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	_, err = exec.Query(ctx, "INSERT INTO chat_sessions (title) VALUES ('x')", 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindQueryExecution))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestQueryExecutor_StatementTimeoutIsTerminal(t *testing.T) {
	ctx := context.Background()
	exec, err := NewQueryExecutor(ctx, storeConfig(t, 100*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	_, err = exec.Query(ctx, "SELECT pg_sleep(2)", 10)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindQueryExecution, appErr.Kind)
	assert.False(t, appErr.Connectivity)
	assert.Equal(t, "SELECT pg_sleep(2)", appErr.SQL)
}

func TestQueryExecutor_UnreachableHostIsRetryable(t *testing.T) {
	_, err := NewQueryExecutor(context.Background(), &datasource.Config{
		Host:           "127.0.0.1",
		Port:           1,
		User:           "nobody",
		Database:       "none",
		SSLMode:        "disable",
		ConnectTimeout: time.Second,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}
