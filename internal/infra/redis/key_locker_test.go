package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"puzzle-scoring-service/internal/domain"
)

func TestKeyLockerExcludesSecondHolder(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	locker := NewKeyLocker(newClient(mr), time.Minute)
	unlock, err := locker.Lock(context.Background(), "attempt:u1:velas")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("lock:attempt:u1:velas") {
		t.Fatalf("expected lock key to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "attempt:u1:velas"); !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}

	unlock()
	unlock()
	if mr.Exists("lock:attempt:u1:velas") {
		t.Fatalf("expected lock key to be released")
	}

	again, err := locker.Lock(context.Background(), "attempt:u1:velas")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestKeyLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	locker := NewKeyLocker(newClient(mr), time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// The lease expires and another instance takes the key.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:k", "someone-else"); err != nil {
		t.Fatalf("set foreign lock: %v", err)
	}

	unlock()
	got, err := mr.Get("lock:k")
	if err != nil || got != "someone-else" {
		t.Fatalf("foreign lock must survive release, got %q (%v)", got, err)
	}
}
