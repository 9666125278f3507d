package service

import (
	"context"
	"edupath_backend/internal/model"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// LearnerLocker serializes per-learner mutations (attempt submission,
// roadmap rewrites) with a Redis lease. Gate reads stay lock-free.
type LearnerLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLearnerLocker(rdb *redis.Client) *LearnerLocker {
	return &LearnerLocker{rdb: rdb, ttl: 10 * time.Second}
}

// releaseScript deletes the lease only when it still belongs to us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// WithLock runs fn while holding the learner's lease, waiting up to
// five seconds to acquire it. Not re-entrant.
func (l *LearnerLocker) WithLock(ctx context.Context, learnerID uint, fn func() error) error {
	key := fmt.Sprintf("lock:learner:%d", learnerID)
	token := model.GenerateUUID()

	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for learner %d lock", learnerID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	defer releaseScript.Run(context.Background(), l.rdb, []string{key}, token)

	return fn()
}
