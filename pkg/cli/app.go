package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
	"github.com/ekaya-inc/ekaya-insights/pkg/services/pipeline"
	sqlpkg "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// app holds the connections and repositories one command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *database.DB
	redis *redis.Client

	schema        repositories.SchemaRepository
	dataSources   repositories.DataSourceRepository
	conversations repositories.ConversationRepository
	outcomes      repositories.OutcomeRepository
	adapters      datasource.DatasourceAdapterFactory
}

func newApp(ctx context.Context, e *env) (*app, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            e.cfg.Database.URL(),
		MaxConnections: e.cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	rdb, err := database.NewRedisClient(ctx, &e.cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}
	if rdb == nil {
		e.logger.Info("Redis disabled, using in-process attempt markers and embedding cache")
	}

	return &app{
		cfg:           e.cfg,
		logger:        e.logger,
		db:            db,
		redis:         rdb,
		schema:        repositories.NewSchemaRepository(db),
		dataSources:   repositories.NewDataSourceRepository(db),
		conversations: repositories.NewConversationRepository(db),
		outcomes:      repositories.NewOutcomeRepository(db),
		adapters:      datasource.NewDatasourceAdapterFactory(),
	}, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	a.db.Close()
}

func (a *app) resolver() services.DataSourceResolver {
	return services.NewDataSourceResolver(a.dataSources, a.cfg.Database, a.cfg.Query, a.logger)
}

func (a *app) embeddings() (services.EmbeddingService, error) {
	embedder, err := llm.NewEmbedder(a.cfg.Embedding, a.logger)
	if err != nil {
		return nil, err
	}
	var cache services.EmbeddingCache
	if a.redis != nil {
		cache = services.NewRedisEmbeddingCache(a.redis, a.cfg.Redis.KeyPrefix, a.cfg.Embedding.CacheTTL)
	} else {
		cache = services.NewMemoryEmbeddingCache(a.cfg.Embedding.CacheTTL)
	}
	return services.NewEmbeddingService(embedder, cache, a.cfg.Embedding.Dimensions, a.logger), nil
}

func (a *app) tracker() pipeline.AttemptTracker {
	if a.redis != nil {
		return pipeline.NewRedisAttemptTracker(a.redis, a.cfg.Redis.KeyPrefix, 2*a.cfg.Pipeline.TaskTimeout)
	}
	return pipeline.NewMemoryAttemptTracker()
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	embeddings, err := a.embeddings()
	if err != nil {
		return nil, err
	}
	completer, err := llm.NewCompleter(a.cfg.LLM, a.logger)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(pipeline.Dependencies{
		Resolver:      a.resolver(),
		Retriever:     services.NewSchemaRetriever(a.schema, embeddings, a.cfg.Retrieval, a.logger),
		Compiler:      services.NewPromptCompiler(a.logger),
		Generator:     services.NewSQLGenerator(completer, a.cfg.LLM.SQLTemperature, a.logger),
		Validator:     sqlpkg.NewValidator(a.logger),
		Executor:      services.NewQueryExecutor(a.adapters, a.cfg.Query.RowLimit, a.logger),
		Postprocessor: services.NewPostprocessor(completer, a.cfg.LLM.SummaryTemperature, a.cfg.Chart, a.logger),
		Conversations: a.conversations,
		Outcomes:      a.outcomes,
		Tracker:       a.tracker(),
	}, a.cfg.Pipeline, a.logger)
	return p, nil
}
