package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresLocker(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock, time.Second), mock
}

func TestPostgres_AcquireRelease(t *testing.T) {
	l, mock := newMockPostgresLocker(t)
	key := advisoryKey("sweep")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock\(\$1\)`).
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
	mock.ExpectRollback()

	g, err := l.Acquire(context.Background(), "sweep", time.Second)
	require.NoError(t, err)
	require.NoError(t, g.Release())
	require.NoError(t, g.Release())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Timeout(t *testing.T) {
	l, mock := newMockPostgresLocker(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WithArgs(advisoryKey("sweep")).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(false))
	mock.ExpectRollback()

	_, err := l.Acquire(context.Background(), "sweep", 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RetriesUntilFree(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()
	l := NewPostgresWithPool(mock, 5*time.Millisecond)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(false))
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
	mock.ExpectRollback()

	g, err := l.Acquire(context.Background(), "sweep", time.Second)
	require.NoError(t, err)
	require.NoError(t, g.Release())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BeginError(t *testing.T) {
	l, mock := newMockPostgresLocker(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := l.Acquire(context.Background(), "sweep", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryKey_Stable(t *testing.T) {
	assert.Equal(t, advisoryKey("sweep"), advisoryKey("sweep"))
	assert.NotEqual(t, advisoryKey("sweep"), advisoryKey("resolve"))
}

func TestPostgres_Held(t *testing.T) {
	l, mock := newMockPostgresLocker(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WithArgs(advisoryKey("sweep")).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`SELECT 1`).WillReturnError(errors.New("conn closed"))
	mock.ExpectRollback()

	g, err := l.Acquire(context.Background(), "sweep", time.Second)
	require.NoError(t, err)

	require.NoError(t, g.Held(context.Background()))
	assert.True(t, errors.Is(g.Held(context.Background()), ErrLost))
	require.NoError(t, g.Release())
	assert.True(t, errors.Is(g.Held(context.Background()), ErrLost))
	assert.NoError(t, mock.ExpectationsWereMet())
}
