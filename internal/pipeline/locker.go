package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"call-insights/pkg/utils"
)

// Locker grants exclusive per-call processing.
// release must be called exactly once when ok is true.
type Locker interface {
	TryLock(ctx context.Context, callID string) (release func(), ok bool, err error)
}

// RedisLocker holds per-call locks in Redis so several API processes never
// run the same call at once. Locks expire after ttl if the holder dies.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, log: log}
}

func lockKey(callID string) string { return "call-insights:pipeline:" + callID }

func (l *RedisLocker) TryLock(ctx context.Context, callID string) (func(), bool, error) {
	key := lockKey(callID)
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, key, token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		// the run's context may already be canceled at this point
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := utils.ReleaseLock(rctx, l.rdb, key, token); err != nil {
			l.log.Warn("pipeline lock release failed", "call_id", callID, "err", err)
		}
	}
	return release, true, nil
}

// LocalLocker is the in-process Locker used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) TryLock(ctx context.Context, callID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[callID]; busy {
		return nil, false, nil
	}
	l.held[callID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, callID)
			l.mu.Unlock()
		})
	}, true, nil
}
