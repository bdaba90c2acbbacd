package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"skygent.dev/skygent/internal/errs"
)

// Lock is a cross-process advisory lock on one store directory, enforcing
// the single-writer discipline: only the process holding the lock may open
// the store for writes.
type Lock struct {
	fl   *flock.Flock
	name string
}

// AcquireLock creates (if needed) the store's directory and takes an
// exclusive lock on its lockfile, waiting up to waitFor before giving up.
func AcquireLock(ctx context.Context, root, name string, waitFor time.Duration) (*Lock, error) {
	dir := Dir(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.NewStoreIoError(dir, err)
	}

	fl := flock.New(filepath.Join(dir, ".lock"))
	lctx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()

	ok, err := fl.TryLockContext(lctx, 50*time.Millisecond)
	if err != nil || !ok {
		return nil, errs.NewStoreLockError(name, 0)
	}
	return &Lock{fl: fl, name: name}, nil
}

// Release unlocks the store.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// AcquireMany locks multiple stores at once, always in sorted-name order, to
// prevent lock-ordering deadlocks between processes that operate on the
// same set of stores. On any failure, every lock already taken is released
// before returning.
func AcquireMany(ctx context.Context, root string, names []string, waitFor time.Duration) ([]*Lock, error) {
	sorted := append([]string{}, names...)
	sort.Strings(sorted)

	locks := make([]*Lock, 0, len(sorted))
	for _, name := range sorted {
		l, err := AcquireLock(ctx, root, name, waitFor)
		if err != nil {
			for _, held := range locks {
				held.Release()
			}
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, nil
}

// ReleaseAll releases every lock in locks, continuing past individual errors
// and returning the first one encountered, if any.
func ReleaseAll(locks []*Lock) error {
	var first error
	for _, l := range locks {
		if err := l.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
