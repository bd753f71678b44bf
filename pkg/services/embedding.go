package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
)

// EmbeddingService turns text into vectors of the configured dimension.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache stores vectors keyed by model and text. A miss is
// (nil, false, nil).
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vec []float32) error
}

type embeddingService struct {
	embedder   llm.Embedder
	cache      EmbeddingCache
	dimensions int
	logger     *zap.Logger
}

// NewEmbeddingService wraps embedder with an optional cache (nil disables
// caching) and a dimension check.
func NewEmbeddingService(embedder llm.Embedder, cache EmbeddingCache, dimensions int, logger *zap.Logger) EmbeddingService {
	return &embeddingService{
		embedder:   embedder,
		cache:      cache,
		dimensions: dimensions,
		logger:     logger.Named("embedding"),
	}
}

var _ EmbeddingService = (*embeddingService)(nil)

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	model := s.embedder.Model()
	if s.cache != nil {
		vec, ok, err := s.cache.Get(ctx, model, text)
		if err != nil {
			s.logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok && len(vec) == s.dimensions {
			return vec, nil
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, asEmbeddingError(err)
	}
	if err := s.checkDimensions(vec); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, model, text, vec); err != nil {
			s.logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, asEmbeddingError(err)
	}
	if len(vecs) != len(texts) {
		return nil, apperrors.Embedding(fmt.Sprintf("embedding backend returned %d vectors for %d texts", len(vecs), len(texts)), nil)
	}
	for _, vec := range vecs {
		if err := s.checkDimensions(vec); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (s *embeddingService) checkDimensions(vec []float32) error {
	if len(vec) != s.dimensions {
		return apperrors.Embedding(
			fmt.Sprintf("embedding model %s returned %d dimensions, expected %d", s.embedder.Model(), len(vec), s.dimensions), nil)
	}
	return nil
}

// asEmbeddingError keeps already classified errors and marks anything else
// as an embedding failure.
func asEmbeddingError(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Embedding("embedding request failed", err)
}

func cacheDigest(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// RedisEmbeddingCache keeps vectors in Redis in pgvector text form.
type RedisEmbeddingCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisEmbeddingCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{client: client, prefix: keyPrefix + "emb:", ttl: ttl}
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+cacheDigest(model, text)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var v pgvector.Vector
	if err := v.Parse(raw); err != nil {
		return nil, false, fmt.Errorf("decode cached vector: %w", err)
	}
	return v.Slice(), true, nil
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, model, text string, vec []float32) error {
	if err := c.client.Set(ctx, c.prefix+cacheDigest(model, text), pgvector.NewVector(vec).String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

var _ EmbeddingCache = (*RedisEmbeddingCache)(nil)

type memoryEntry struct {
	vec     []float32
	expires time.Time
}

// MemoryEmbeddingCache is the in-process cache used when Redis is disabled.
type MemoryEmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryEmbeddingCache(ttl time.Duration) *MemoryEmbeddingCache {
	return &MemoryEmbeddingCache{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (c *MemoryEmbeddingCache) Get(_ context.Context, model, text string) ([]float32, bool, error) {
	key := cacheDigest(model, text)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]float32(nil), e.vec...), true, nil
}

func (c *MemoryEmbeddingCache) Set(_ context.Context, model, text string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheDigest(model, text)] = memoryEntry{
		vec:     append([]float32(nil), vec...),
		expires: c.now().Add(c.ttl),
	}
	return nil
}

var _ EmbeddingCache = (*MemoryEmbeddingCache)(nil)
