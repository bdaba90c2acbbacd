package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockThenReleaseAllowsReacquire(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	lock, err := AcquireLock(ctx, root, "store1", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := AcquireLock(ctx, root, "store1", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestAcquireLockTimesOutWhenAlreadyHeld(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	lock, err := AcquireLock(ctx, root, "store1", time.Second)
	require.NoError(t, err)
	defer lock.Release()

	_, err = AcquireLock(ctx, root, "store1", 100*time.Millisecond)
	assert.Error(t, err)
}

func TestAcquireManySortsNamesAndReleasesOnFailure(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	held, err := AcquireLock(ctx, root, "b", time.Second)
	require.NoError(t, err)
	defer held.Release()

	_, err = AcquireMany(ctx, root, []string{"b", "a", "c"}, 100*time.Millisecond)
	assert.Error(t, err, "conflicts with the already-held lock on store b")

	lockA, err := AcquireLock(ctx, root, "a", time.Second)
	require.NoError(t, err, "store a must have been released after the failed AcquireMany")
	lockA.Release()
}

func TestReleaseAllSucceedsWhenEveryReleaseSucceeds(t *testing.T) {
	locks, err := AcquireMany(context.Background(), t.TempDir(), []string{"x", "y"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, ReleaseAll(locks))
}
