package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	strerrors "github.com/strand-search/strand/internal/errors"
)

// DirLock guards a data directory against concurrent writers.
// Readers don't lock; the catalog's WAL mode handles concurrent reads.
type DirLock struct {
	lock *flock.Flock
}

// AcquireDirLock takes an exclusive lock on dir, creating it if needed.
// Returns ErrCodeStoreLocked if another process holds the lock.
func AcquireDirLock(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, strerrors.StoreIo(err)
	}
	l := flock.New(filepath.Join(dir, ".strand.lock"))
	ok, err := l.TryLock()
	if err != nil {
		return nil, strerrors.StoreIo(err)
	}
	if !ok {
		return nil, strerrors.Newf(strerrors.ErrCodeStoreLocked,
			"data directory %s is locked by another strand process", dir)
	}
	return &DirLock{lock: l}, nil
}

// Release drops the lock.
func (d *DirLock) Release() error {
	if err := d.lock.Unlock(); err != nil {
		return strerrors.StoreIo(fmt.Errorf("releasing dir lock: %w", err))
	}
	return nil
}
