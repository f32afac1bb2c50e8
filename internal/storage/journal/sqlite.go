// internal/storage/journal/sqlite.go
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rovshanmuradov/origin-trader/internal/storage"
	"github.com/rovshanmuradov/origin-trader/internal/storage/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_attempts (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	side          TEXT NOT NULL,
	flow          TEXT NOT NULL,
	phase         TEXT NOT NULL,
	mint          TEXT NOT NULL,
	amount_in     TEXT NOT NULL,
	quoted_out    TEXT NOT NULL DEFAULT '',
	min_out       TEXT NOT NULL DEFAULT '',
	tolerance     REAL NOT NULL DEFAULT 0,
	approval_hash TEXT NOT NULL DEFAULT '',
	tx_hash       TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	fee_wei       TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_attempts_owner ON trade_attempts(owner, created_at);
CREATE INDEX IF NOT EXISTS idx_trade_attempts_tx_hash ON trade_attempts(tx_hash);
`

const columns = `id, owner, side, flow, phase, mint, amount_in, quoted_out, min_out, tolerance,
	approval_hash, tx_hash, state, reason, error_message, fee_wei, created_at, updated_at`

// sqliteJournal реализует интерфейс storage.Journal
type sqliteJournal struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the journal database at path and migrates it.
// ":memory:" gives a private in-memory journal.
func Open(ctx context.Context, path string, logger *zap.Logger) (storage.Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	j := &sqliteJournal{
		db:     db,
		logger: logger.Named("journal"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := j.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *sqliteJournal) RunMigrations(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (j *sqliteJournal) Close() error {
	return j.db.Close()
}

func (j *sqliteJournal) SaveAttempt(ctx context.Context, a *models.Attempt) error {
	if a == nil || a.ID == "" {
		return errors.New("attempt id is required")
	}
	now := j.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := j.db.ExecContext(ctx, `
INSERT INTO trade_attempts (`+columns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	quoted_out = excluded.quoted_out,
	min_out = excluded.min_out,
	approval_hash = excluded.approval_hash,
	tx_hash = excluded.tx_hash,
	state = excluded.state,
	reason = excluded.reason,
	error_message = excluded.error_message,
	fee_wei = excluded.fee_wei,
	updated_at = excluded.updated_at`,
		a.ID, a.Owner, a.Side, a.Flow, a.Phase, a.Mint, a.AmountIn, a.QuotedOut, a.MinOut, a.Tolerance,
		a.ApprovalHash, a.TxHash, a.State, a.Reason, a.ErrorMessage, a.FeeWei,
		a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli())
	if err != nil {
		j.logger.Error("Failed to save attempt", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("save attempt %s: %w", a.ID, err)
	}
	return nil
}

func (j *sqliteJournal) GetAttempt(ctx context.Context, id string) (*models.Attempt, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+columns+` FROM trade_attempts WHERE id = ?`, id)
	return scanOne(row)
}

func (j *sqliteJournal) FindByHash(ctx context.Context, txHash string) (*models.Attempt, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM trade_attempts WHERE tx_hash = ? ORDER BY created_at DESC LIMIT 1`, txHash)
	return scanOne(row)
}

func (j *sqliteJournal) ListAttempts(ctx context.Context, owner string, limit, offset int) ([]*models.Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+columns+` FROM trade_attempts WHERE owner = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return scanAll(rows)
}

func (j *sqliteJournal) ListUnsettled(ctx context.Context) ([]*models.Attempt, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+columns+` FROM trade_attempts
		 WHERE tx_hash != '' AND state NOT IN ('succeeded', 'failed')
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list unsettled attempts: %w", err)
	}
	return scanAll(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Attempt, error) {
	var (
		a                models.Attempt
		created, updated int64
	)
	err := s.Scan(&a.ID, &a.Owner, &a.Side, &a.Flow, &a.Phase, &a.Mint, &a.AmountIn, &a.QuotedOut,
		&a.MinOut, &a.Tolerance, &a.ApprovalHash, &a.TxHash, &a.State, &a.Reason, &a.ErrorMessage,
		&a.FeeWei, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = time.UnixMilli(created).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return &a, nil
}

func scanOne(row *sql.Row) (*models.Attempt, error) {
	a, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read attempt: %w", err)
	}
	return a, nil
}

func scanAll(rows *sql.Rows) ([]*models.Attempt, error) {
	defer rows.Close()
	var out []*models.Attempt
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("read attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
