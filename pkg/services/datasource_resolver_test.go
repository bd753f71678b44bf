package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

func testQueryConfig(fallback bool) config.QueryConfig {
	return config.QueryConfig{
		RowLimit:               1000,
		StatementTimeout:       30 * time.Second,
		ConnectTimeout:         10 * time.Second,
		FallbackToDefaultStore: fallback,
	}
}

func TestDataSourceResolver_SingleActive(t *testing.T) {
	ds := &models.DataSource{
		ID: uuid.New(), Name: "ads", Driver: models.DriverMySQL,
		Host: "db", Port: 3306, DatabaseName: "ads", Username: "reader", Password: "secret",
	}
	resolver := NewDataSourceResolver(&mockDataSourceRepository{active: []*models.DataSource{ds}},
		config.DatabaseConfig{}, testQueryConfig(false), zap.NewNop())

	target, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ds.ID, target.DataSourceID)
	assert.Equal(t, "ads", target.Name)
	assert.Equal(t, sqlpkg.DialectMySQL, target.Dialect())
	assert.Equal(t, "reader", target.Config.User)
	assert.Equal(t, 30*time.Second, target.Config.StatementTimeout)
}

func TestDataSourceResolver_MultipleActiveIsConfigurationError(t *testing.T) {
	repo := &mockDataSourceRepository{active: []*models.DataSource{
		{ID: uuid.New(), Name: "ads"},
		{ID: uuid.New(), Name: "crm"},
	}}
	resolver := NewDataSourceResolver(repo, config.DatabaseConfig{}, testQueryConfig(true), zap.NewNop())

	_, err := resolver.Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
	assert.Contains(t, err.Error(), "ads, crm")
}

func TestDataSourceResolver_NoneActive(t *testing.T) {
	store := config.DatabaseConfig{Host: "localhost", Port: 5432, User: "ekaya", Database: "ekaya_insights", SSLMode: "disable"}

	t.Run("without fallback", func(t *testing.T) {
		resolver := NewDataSourceResolver(&mockDataSourceRepository{}, store, testQueryConfig(false), zap.NewNop())
		_, err := resolver.Resolve(context.Background())
		assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
	})

	t.Run("with fallback to the default store", func(t *testing.T) {
		resolver := NewDataSourceResolver(&mockDataSourceRepository{}, store, testQueryConfig(true), zap.NewNop())
		target, err := resolver.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, target.DataSourceID)
		assert.Equal(t, DefaultStoreName, target.Name)
		assert.Equal(t, models.DriverPostgres, target.Driver)
		assert.Equal(t, "ekaya_insights", target.Config.Database)
	})
}
