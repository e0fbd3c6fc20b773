package slotlock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ttl, nil), mr
}

func TestAcquireIsExclusive(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	ok, release, err := locker.Acquire(ctx, "global:2026-03-03")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if !mr.Exists(keyPrefix + "global:2026-03-03") {
		t.Fatal("expected lock key in redis")
	}

	ok, _, err = locker.Acquire(ctx, "global:2026-03-03")
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	ok, otherRelease, err := locker.Acquire(ctx, "global:2026-03-04")
	if err != nil || !ok {
		t.Fatalf("other day should be free: ok=%v err=%v", ok, err)
	}
	otherRelease()

	release()
	ok, release, err = locker.Acquire(ctx, "global:2026-03-03")
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
	release()
}

func TestLockExpiresAndStaleReleaseKeepsNewOwner(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	_, staleRelease, err := locker.Acquire(ctx, "tm:2026-03-03")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	ok, release, err := locker.Acquire(ctx, "tm:2026-03-03")
	if err != nil || !ok {
		t.Fatalf("expected expired lock to be free: ok=%v err=%v", ok, err)
	}

	staleRelease()
	if !mr.Exists(keyPrefix + "tm:2026-03-03") {
		t.Fatal("stale release removed the new owner's lock")
	}
	release()
	if mr.Exists(keyPrefix + "tm:2026-03-03") {
		t.Fatal("expected lock removed by owner")
	}
}

func TestAcquireReportsRedisErrors(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	mr.Close()
	if _, _, err := locker.Acquire(context.Background(), "k"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
