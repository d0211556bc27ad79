package lock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteLocker(t *testing.T, path string, opts SQLiteOptions) *SQLite {
	t.Helper()
	l, err := OpenSQLite(context.Background(), path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck
	return l
}

func TestSQLite_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	l := newTestSQLiteLocker(t, path, SQLiteOptions{PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	g, err := l.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.NoError(t, g.Release())
	require.NoError(t, g.Release())

	g2, err := l.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.NoError(t, g2.Release())
}

func TestSQLite_SecondHolderTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	a := newTestSQLiteLocker(t, path, SQLiteOptions{PollInterval: 5 * time.Millisecond})
	b := newTestSQLiteLocker(t, path, SQLiteOptions{PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	g, err := a.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	defer g.Release() //nolint:errcheck

	_, err = b.Acquire(ctx, "sweep", 40*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	// A different name is independent.
	other, err := b.Acquire(ctx, "resolve", 40*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, other.Release())
}

func TestSQLite_WaiterAcquiresAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	a := newTestSQLiteLocker(t, path, SQLiteOptions{PollInterval: 5 * time.Millisecond})
	b := newTestSQLiteLocker(t, path, SQLiteOptions{PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	g, err := a.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		g.Release() //nolint:errcheck
	}()

	g2, err := b.Acquire(ctx, "sweep", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, g2.Release())
}

func TestSQLite_ExpiredLeaseIsTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	crashed := newTestSQLiteLocker(t, path, SQLiteOptions{LeaseTTL: 10 * time.Millisecond})
	b := newTestSQLiteLocker(t, path, SQLiteOptions{PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	dead, err := crashed.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	dead.(*sqliteGuard).stopHeartbeat()

	g, err := b.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.NoError(t, g.Release())
}

func TestSQLite_StaleGuardDoesNotReleaseNewOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	crashed := newTestSQLiteLocker(t, path, SQLiteOptions{LeaseTTL: 10 * time.Millisecond})
	b := newTestSQLiteLocker(t, path, SQLiteOptions{PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	stale, err := crashed.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	stale.(*sqliteGuard).stopHeartbeat()

	g, err := b.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	defer g.Release() //nolint:errcheck

	err = stale.Held(ctx)
	assert.True(t, errors.Is(err, ErrLost))
	err = stale.Release()
	assert.True(t, errors.Is(err, ErrLost))
	require.NoError(t, g.Held(ctx))

	_, err = crashed.Acquire(ctx, "sweep", 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestSQLite_HeartbeatKeepsLeasePastTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	opts := SQLiteOptions{PollInterval: 5 * time.Millisecond, LeaseTTL: 100 * time.Millisecond}
	a := newTestSQLiteLocker(t, path, opts)
	b := newTestSQLiteLocker(t, path, opts)
	ctx := context.Background()

	g, err := a.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)

	// Hold well past the TTL, as a slow sweep would.
	time.Sleep(350 * time.Millisecond)
	require.NoError(t, g.Held(ctx))

	_, err = b.Acquire(ctx, "sweep", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	require.NoError(t, g.Release())
	assert.True(t, errors.Is(g.Held(ctx), ErrLost))

	g2, err := b.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.NoError(t, g2.Release())
}

func TestSQLite_HeartbeatDetectsTakeover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	l := newTestSQLiteLocker(t, path, SQLiteOptions{LeaseTTL: 30 * time.Millisecond})
	ctx := context.Background()

	g, err := l.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)

	_, err = l.db.ExecContext(ctx, `UPDATE locks SET owner = 'intruder' WHERE name = 'sweep'`)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sg := g.(*sqliteGuard)
		sg.mu.Lock()
		defer sg.mu.Unlock()
		return sg.lost
	}, time.Second, 5*time.Millisecond)

	assert.True(t, errors.Is(g.Held(ctx), ErrLost))
	assert.True(t, errors.Is(g.Release(), ErrLost))
}
