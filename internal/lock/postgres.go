package lock

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the Postgres locker uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Postgres is a Locker backed by transaction-scoped advisory locks. The
// transaction stays open while the guard is held.
type Postgres struct {
	pool         Pool
	pollInterval time.Duration
}

// NewPostgres connects to databaseURL and returns a Postgres locker.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "lock: connect postgres")
	}
	return NewPostgresWithPool(pool, 0), nil
}

// NewPostgresWithPool wraps an existing pool. A zero pollInterval uses 250ms.
func NewPostgresWithPool(pool Pool, pollInterval time.Duration) *Postgres {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Postgres{pool: pool, pollInterval: pollInterval}
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Acquire(ctx context.Context, name string, timeout time.Duration) (Guard, error) {
	key := advisoryKey(name)
	deadline := time.Now().Add(timeout)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "lock: begin %q", name)
	}

	for {
		var ok bool
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, key).Scan(&ok); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return nil, eris.Wrapf(err, "lock: try advisory lock %q", name)
		}
		if ok {
			return &postgresGuard{tx: tx, name: name}, nil
		}

		again, err := wait(ctx, p.pollInterval, deadline)
		if err != nil || !again {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			if err != nil {
				return nil, eris.Wrapf(err, "lock %q", name)
			}
			return nil, eris.Wrapf(ErrTimeout, "lock %q after %s", name, timeout)
		}
	}
}

// advisoryKey maps a lock name onto the bigint advisory lock key space.
func advisoryKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name)) //nolint:errcheck
	return int64(h.Sum64())
}

type postgresGuard struct {
	tx       pgx.Tx
	name     string
	released bool
}

// Held pings the transaction that holds the advisory lock. A dead session
// has already dropped the lock.
func (g *postgresGuard) Held(ctx context.Context) error {
	if g.released {
		return eris.Wrapf(ErrLost, "lock %q", g.name)
	}
	if _, err := g.tx.Exec(ctx, `SELECT 1`); err != nil {
		return eris.Wrapf(ErrLost, "lock %q: %v", g.name, err)
	}
	return nil
}

func (g *postgresGuard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	// Ending the transaction releases the xact-scoped advisory lock.
	return eris.Wrapf(g.tx.Rollback(context.Background()), "lock: release %q", g.name)
}
