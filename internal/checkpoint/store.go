package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lamim/folioforge/pkg/models"
)

var (
	ErrNotFound      = errors.New("checkpoint not found")
	ErrCheckpointIO  = errors.New("checkpoint I/O error")
	ErrInvalidRecord = errors.New("invalid checkpoint record")
	ErrPlanMismatch  = errors.New("section plan does not match checkpoint")
	ErrProjectLocked = errors.New("project is locked by another worker")
	ErrLockLost      = errors.New("project lock lost")
)

// CheckpointIOError wraps a durable-store failure. It is always fatal to the
// worker: continuing past an unpersisted section breaks resumption.
type CheckpointIOError struct {
	Op        string
	ProjectID string
	Err       error
}

func (e *CheckpointIOError) Error() string {
	return fmt.Sprintf("checkpoint %s failed for project %s: %v", e.Op, e.ProjectID, e.Err)
}

func (e *CheckpointIOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCheckpointIO) match any CheckpointIOError
func (e *CheckpointIOError) Is(target error) bool { return target == ErrCheckpointIO }

// Store persists one CheckpointRecord per project. Save replaces the previous
// record atomically from a reader's point of view.
type Store interface {
	Load(ctx context.Context, projectID string) (*models.CheckpointRecord, error)
	Save(ctx context.Context, rec *models.CheckpointRecord) error
	Delete(ctx context.Context, projectID string) error
	Backend() string
}

// Index maps project ids to their latest summary so resumption never
// depends on directory listing order.
type Index interface {
	Upsert(ctx context.Context, entry models.IndexEntry) error
	// Incomplete returns unfinished projects, most recently updated first
	Incomplete(ctx context.Context) ([]models.IndexEntry, error)
	// List returns every project, most recently updated first
	List(ctx context.Context) ([]models.IndexEntry, error)
	Remove(ctx context.Context, projectID string) error
	Close() error
}

// Lock is a held single-writer lock on a project
type Lock interface {
	Unlock() error
	// Lost is closed if the lock is taken away while held. A nil channel
	// means the lock cannot be lost.
	Lost() <-chan struct{}
}

// Locker hands out per-project locks. Acquire fails with ErrProjectLocked
// when another worker holds the project.
type Locker interface {
	Acquire(ctx context.Context, projectID string) (Lock, error)
}

// WatchLock returns a context that is cancelled with cause ErrLockLost as
// soon as lock is lost. Call stop once the lock is released.
func WatchLock(ctx context.Context, lock Lock) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	lost := lock.Lost()
	if lost == nil {
		return ctx, func() { cancel(nil) }
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-lost:
			cancel(ErrLockLost)
		case <-done:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			cancel(nil)
		})
	}
}

// LockLost reports whether ctx was cancelled by WatchLock
func LockLost(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrLockLost)
}

// Validate checks the record invariants: known project, positive plan size,
// no duplicate indices and every index inside [0, plan_size).
func Validate(rec *models.CheckpointRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if rec.ProjectID == "" {
		return fmt.Errorf("%w: empty project id", ErrInvalidRecord)
	}
	if rec.PlanSize < 1 {
		return fmt.Errorf("%w: plan_size must be positive (got %d)", ErrInvalidRecord, rec.PlanSize)
	}
	seen := make(map[int]struct{}, len(rec.CompletedSections))
	for _, idx := range rec.CompletedSections {
		if idx < 0 || idx >= rec.PlanSize {
			return fmt.Errorf("%w: section %d outside [0, %d)", ErrInvalidRecord, idx, rec.PlanSize)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("%w: section %d listed twice", ErrInvalidRecord, idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}
