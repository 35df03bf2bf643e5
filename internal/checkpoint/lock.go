package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/lamim/folioforge/internal/writer"
)

// FileLocker locks projects with OS file locks under the checkpoint
// directory. Locks die with the process, so a crash never leaves a stale lock.
type FileLocker struct {
	dir string
}

// NewFileLocker creates a locker rooted at dir
func NewFileLocker(dir string) (*FileLocker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLocker{dir: dir}, nil
}

// Acquire takes the project's lock without blocking
func (l *FileLocker) Acquire(ctx context.Context, projectID string) (Lock, error) {
	if err := writer.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(l.dir, projectID+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock project %s: %w", projectID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectLocked, projectID)
	}
	return fileLock{fl}, nil
}

// fileLock is released only by Unlock or process exit
type fileLock struct {
	*flock.Flock
}

func (fileLock) Lost() <-chan struct{} { return nil }
