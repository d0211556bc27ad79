package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/printlog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sweeps (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS failed_notifications (
	id             TEXT PRIMARY KEY,
	sweep_id       TEXT NOT NULL,
	row_number     INTEGER NOT NULL,
	envelope       TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	delivered      INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sweeps_status ON sweeps(status);
CREATE INDEX IF NOT EXISTS idx_sweeps_created_at ON sweeps(created_at);
CREATE INDEX IF NOT EXISTS idx_failed_delivered ON failed_notifications(delivered);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSweep(ctx context.Context) (*model.Sweep, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sweeps (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.SweepStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert sweep")
	}

	return &model.Sweep{
		ID:        id,
		Status:    model.SweepStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteSweep(ctx context.Context, sweepID string, result *model.SweepResult, sweepErr error) error {
	var resultJSON sql.NullString
	status := model.SweepStatusComplete
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal sweep result")
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
		if result.Status != "" {
			status = result.Status
		}
	}

	var errMsg sql.NullString
	if sweepErr != nil {
		errMsg = sql.NullString{String: sweepErr.Error(), Valid: true}
		if status == model.SweepStatusComplete || status == model.SweepStatusRunning {
			status = model.SweepStatusFailed
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sweeps SET status = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), resultJSON, errMsg, time.Now().UTC(), sweepID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sweep %s", sweepID)
	}
	return checkRowsAffected(res, "sweep", sweepID)
}

func (s *SQLiteStore) GetSweep(ctx context.Context, sweepID string) (*model.Sweep, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, result, error, created_at, updated_at FROM sweeps WHERE id = ?`,
		sweepID,
	)
	return scanSweep(row)
}

func (s *SQLiteStore) ListSweeps(ctx context.Context, filter SweepFilter) ([]model.Sweep, error) {
	query := `SELECT id, status, result, error, created_at, updated_at FROM sweeps WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sweeps")
	}
	defer rows.Close()

	var sweeps []model.Sweep
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, *sw)
	}
	return sweeps, eris.Wrap(rows.Err(), "sqlite: list sweeps iterate")
}

func (s *SQLiteStore) EnqueueFailed(ctx context.Context, f model.FailedNotification) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.LastFailedAt.IsZero() {
		f.LastFailedAt = now
	}

	envJSON, err := json.Marshal(f.Envelope)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal envelope")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO failed_notifications
			(id, sweep_id, row_number, envelope, error, error_type, retry_count, max_retries, delivered, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		f.ID, f.SweepID, f.Row, string(envJSON), f.Error, f.ErrorType, f.RetryCount, f.MaxRetries,
		f.CreatedAt.UTC(), f.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue failed notification")
}

func (s *SQLiteStore) ListFailed(ctx context.Context, filter FailedFilter) ([]model.FailedNotification, error) {
	query := `SELECT id, sweep_id, row_number, envelope, error, error_type, retry_count, max_retries, delivered, created_at, last_failed_at
		FROM failed_notifications WHERE 1=1`
	var args []any

	if !filter.IncludeDelivered {
		query += ` AND delivered = 0`
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failed notifications")
	}
	defer rows.Close()

	var out []model.FailedNotification
	for rows.Next() {
		var f model.FailedNotification
		var envJSON string
		if err := rows.Scan(&f.ID, &f.SweepID, &f.Row, &envJSON, &f.Error, &f.ErrorType,
			&f.RetryCount, &f.MaxRetries, &f.Delivered, &f.CreatedAt, &f.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed notification")
		}
		if err := json.Unmarshal([]byte(envJSON), &f.Envelope); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal envelope")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failed iterate")
}

func (s *SQLiteStore) MarkDelivered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE failed_notifications SET delivered = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark delivered %s", id)
	}
	return checkRowsAffected(res, "failed notification", id)
}

func (s *SQLiteStore) RecordRetryFailure(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE failed_notifications SET retry_count = retry_count + 1, error = ?, last_failed_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record retry failure %s", id)
	}
	return checkRowsAffected(res, "failed notification", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSweep(row scannable) (*model.Sweep, error) {
	var sw model.Sweep
	var resultJSON, errMsg sql.NullString

	err := row.Scan(&sw.ID, &sw.Status, &resultJSON, &errMsg, &sw.CreatedAt, &sw.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("sweep not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan sweep")
	}

	if resultJSON.Valid {
		sw.Result = &model.SweepResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), sw.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal sweep result")
		}
	}
	sw.Error = errMsg.String
	return &sw, nil
}
