package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AttemptTracker holds the current attempt marker of each session. Starting
// a new attempt supersedes the previous one, which observes the change at
// its next checkpoint.
type AttemptTracker interface {
	// Begin records a fresh attempt as current and returns its id.
	Begin(ctx context.Context, sessionID uuid.UUID) (string, error)
	// Current returns the current attempt id, or false when none is recorded.
	Current(ctx context.Context, sessionID uuid.UUID) (string, bool, error)
	// Clear removes the marker only if attemptID is still current.
	Clear(ctx context.Context, sessionID uuid.UUID, attemptID string) error
}

// compareAndDelete deletes KEYS[1] only when it holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisAttemptTracker shares markers between processes.
type RedisAttemptTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisAttemptTracker stores markers under keyPrefix+"attempt:". Markers
// expire after ttl so a crashed worker does not pin a session; ttl <= 0
// keeps them until cleared.
func NewRedisAttemptTracker(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisAttemptTracker {
	return &RedisAttemptTracker{client: client, prefix: keyPrefix + "attempt:", ttl: ttl}
}

var _ AttemptTracker = (*RedisAttemptTracker)(nil)

func (t *RedisAttemptTracker) key(sessionID uuid.UUID) string {
	return t.prefix + sessionID.String()
}

func (t *RedisAttemptTracker) Begin(ctx context.Context, sessionID uuid.UUID) (string, error) {
	attemptID := uuid.NewString()
	if err := t.client.Set(ctx, t.key(sessionID), attemptID, max(t.ttl, 0)).Err(); err != nil {
		return "", fmt.Errorf("failed to record attempt: %w", err)
	}
	return attemptID, nil
}

func (t *RedisAttemptTracker) Current(ctx context.Context, sessionID uuid.UUID) (string, bool, error) {
	attemptID, err := t.client.Get(ctx, t.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read attempt: %w", err)
	}
	return attemptID, true, nil
}

func (t *RedisAttemptTracker) Clear(ctx context.Context, sessionID uuid.UUID, attemptID string) error {
	if err := compareAndDelete.Run(ctx, t.client, []string{t.key(sessionID)}, attemptID).Err(); err != nil {
		return fmt.Errorf("failed to clear attempt: %w", err)
	}
	return nil
}

// MemoryAttemptTracker keeps markers in process. Used when Redis is disabled
// and in tests.
type MemoryAttemptTracker struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]string
}

func NewMemoryAttemptTracker() *MemoryAttemptTracker {
	return &MemoryAttemptTracker{attempts: make(map[uuid.UUID]string)}
}

var _ AttemptTracker = (*MemoryAttemptTracker)(nil)

func (t *MemoryAttemptTracker) Begin(_ context.Context, sessionID uuid.UUID) (string, error) {
	attemptID := uuid.NewString()
	t.mu.Lock()
	t.attempts[sessionID] = attemptID
	t.mu.Unlock()
	return attemptID, nil
}

func (t *MemoryAttemptTracker) Current(_ context.Context, sessionID uuid.UUID) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	attemptID, ok := t.attempts[sessionID]
	return attemptID, ok, nil
}

func (t *MemoryAttemptTracker) Clear(_ context.Context, sessionID uuid.UUID, attemptID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attempts[sessionID] == attemptID {
		delete(t.attempts, sessionID)
	}
	return nil
}
