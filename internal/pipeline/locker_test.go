package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mini
}

func TestRedisLocker_ExclusivePerCall(t *testing.T) {
	rdb, mini := newTestRedis(t)
	l := NewRedisLocker(rdb, time.Minute, nil)
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("expected first lock, got ok=%v err=%v", ok, err)
	}
	if !mini.Exists(lockKey("c1")) {
		t.Fatalf("expected lock key in redis")
	}

	if _, ok, err := l.TryLock(ctx, "c1"); err != nil || ok {
		t.Fatalf("expected second lock to be refused, got ok=%v err=%v", ok, err)
	}
	if r2, ok, err := l.TryLock(ctx, "c2"); err != nil || !ok {
		t.Fatalf("expected other call to lock, got ok=%v err=%v", ok, err)
	} else {
		r2()
	}

	release()
	if mini.Exists(lockKey("c1")) {
		t.Fatalf("expected lock key removed on release")
	}
	if r3, ok, _ := l.TryLock(ctx, "c1"); !ok {
		t.Fatalf("expected lock to be free after release")
	} else {
		r3()
	}
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	rdb, mini := newTestRedis(t)
	l := NewRedisLocker(rdb, time.Second, nil)
	ctx := context.Background()

	staleRelease, ok, _ := l.TryLock(ctx, "c1")
	if !ok {
		t.Fatalf("expected lock")
	}
	mini.FastForward(2 * time.Second)

	freshRelease, ok, _ := l.TryLock(ctx, "c1")
	if !ok {
		t.Fatalf("expected lock after expiry")
	}
	staleRelease()
	if !mini.Exists(lockKey("c1")) {
		t.Fatalf("stale holder must not release the new holder's lock")
	}
	freshRelease()
}
