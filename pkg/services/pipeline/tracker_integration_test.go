//go:build integration

package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-insights/pkg/testhelpers"
)

func TestRedisAttemptTracker(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testhelpers.GetRedisAddr(t)})
	t.Cleanup(func() { _ = client.Close() })

	exerciseTracker(t, NewRedisAttemptTracker(client, "test:"+uuid.NewString()+":", time.Minute))
}
