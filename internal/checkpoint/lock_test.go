package checkpoint

import (
	"context"
	"errors"
	"testing"
)

func TestFileLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	locker, err := NewFileLocker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	lock, err := locker.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := locker.Acquire(ctx, "p1"); !errors.Is(err, ErrProjectLocked) {
		t.Fatalf("expected ErrProjectLocked, got %v", err)
	}

	other, err := locker.Acquire(ctx, "p2")
	if err != nil {
		t.Fatalf("other project should lock independently: %v", err)
	}
	_ = other.Unlock()

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	relock, err := locker.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("Acquire() after Unlock error = %v", err)
	}
	_ = relock.Unlock()
}

func TestFileLocker_RejectsBadID(t *testing.T) {
	locker, err := NewFileLocker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := locker.Acquire(context.Background(), "../x"); err == nil {
		t.Error("expected error for invalid project id")
	}
}

func TestWatchLock_FileLockIsNeverLost(t *testing.T) {
	locker, err := NewFileLocker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	lock, err := locker.Acquire(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lock.Unlock() }()

	if lock.Lost() != nil {
		t.Error("file locks should report no loss channel")
	}

	ctx, stop := WatchLock(context.Background(), lock)
	if ctx.Err() != nil {
		t.Fatal("watched context cancelled early")
	}
	stop()
	if ctx.Err() == nil {
		t.Error("stop should cancel the watched context")
	}
	if LockLost(ctx) {
		t.Error("stop must not report a lost lock")
	}
}
