package lock

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteOptions tunes the lease-based SQLite locker.
type SQLiteOptions struct {
	// PollInterval is the delay between acquisition attempts. Default: 100ms.
	PollInterval time.Duration
	// LeaseTTL expires a lease whose holder died without releasing it. A live
	// guard renews its lease every LeaseTTL/3. Default: 10m.
	LeaseTTL time.Duration
}

// SQLite is a cross-process Locker that stores leases in a SQLite table.
type SQLite struct {
	db   *sql.DB
	opts SQLiteOptions
}

// OpenSQLite opens the lease database at dsn and creates the lease table.
func OpenSQLite(ctx context.Context, dsn string, opts SQLiteOptions) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "lock: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "lock: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS locks (
	name        TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
)`); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "lock: migrate")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	return &SQLite{db: db, opts: opts}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Acquire(ctx context.Context, name string, timeout time.Duration) (Guard, error) {
	owner := uuid.New().String()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := s.tryAcquire(ctx, name, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			return newSQLiteGuard(s.db, name, owner, s.opts.LeaseTTL), nil
		}

		again, err := wait(ctx, s.opts.PollInterval, deadline)
		if err != nil {
			return nil, eris.Wrapf(err, "lock %q", name)
		}
		if !again {
			return nil, eris.Wrapf(ErrTimeout, "lock %q after %s", name, timeout)
		}
	}
}

// tryAcquire inserts the lease, or takes over one that has expired.
func (s *SQLite) tryAcquire(ctx context.Context, name, owner string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (name, owner, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		 WHERE locks.expires_at <= ?`,
		name, owner, now.UnixNano(), now.Add(s.opts.LeaseTTL).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "lock: acquire %q", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "lock: rows affected")
	}
	return n == 1, nil
}

type sqliteGuard struct {
	db    *sql.DB
	name  string
	owner string
	ttl   time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	lost     bool
	released bool
}

func newSQLiteGuard(db *sql.DB, name, owner string, ttl time.Duration) *sqliteGuard {
	g := &sqliteGuard{
		db:    db,
		name:  name,
		owner: owner,
		ttl:   ttl,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go g.heartbeat()
	return g
}

// heartbeat pushes expires_at forward until the guard is released or the
// lease turns out to belong to someone else.
func (g *sqliteGuard) heartbeat() {
	defer close(g.done)

	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		res, err := g.db.Exec(
			`UPDATE locks SET expires_at = ? WHERE name = ? AND owner = ? AND expires_at > ?`,
			now.Add(g.ttl).UnixNano(), g.name, g.owner, now.UnixNano(),
		)
		if err != nil {
			// The next tick may still land inside the lease.
			zap.L().Warn("lock: renew lease failed", zap.String("lock", g.name), zap.Error(err))
			continue
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			g.mu.Lock()
			g.lost = true
			g.mu.Unlock()
			zap.L().Error("lock: lease lost", zap.String("lock", g.name))
			return
		}
	}
}

func (g *sqliteGuard) stopHeartbeat() {
	g.stopOnce.Do(func() {
		close(g.stop)
		<-g.done
	})
}

// Held checks the lease row itself, so a lease that expired between
// heartbeats is reported too.
func (g *sqliteGuard) Held(ctx context.Context) error {
	g.mu.Lock()
	lost, released := g.lost, g.released
	g.mu.Unlock()
	if lost || released {
		return eris.Wrapf(ErrLost, "lock %q", g.name)
	}

	var expiresAt int64
	err := g.db.QueryRowContext(ctx,
		`SELECT expires_at FROM locks WHERE name = ? AND owner = ?`, g.name, g.owner,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrLost, "lock %q: lease taken over", g.name)
	}
	if err != nil {
		return eris.Wrapf(err, "lock: check lease %q", g.name)
	}
	if expiresAt <= time.Now().UTC().UnixNano() {
		return eris.Wrapf(ErrLost, "lock %q: lease expired", g.name)
	}
	return nil
}

func (g *sqliteGuard) Release() error {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return nil
	}
	g.released = true
	g.mu.Unlock()

	g.stopHeartbeat()

	res, err := g.db.Exec(`DELETE FROM locks WHERE name = ? AND owner = ?`, g.name, g.owner)
	if err != nil {
		return eris.Wrapf(err, "lock: release %q", g.name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Wrapf(ErrLost, "lock %q: released after takeover", g.name)
	}
	return nil
}
