// Package sqlite implements history.Log on top of SQLite so results survive
// restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/history"
)

// Log is a capped history log stored in a single table.
type Log struct {
	db       *sql.DB
	capacity int
	mu       sync.Mutex
}

// Verify interface compliance at compile time.
var _ history.Log = (*Log)(nil)

// New opens (or creates) a SQLite database at dbPath and runs migrations.
// At most capacity entries are retained.
func New(dbPath string, capacity int) (*Log, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	l := &Log{db: db, capacity: capacity}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_seq ON history(seq);
	`
	_, err := l.db.Exec(schema)
	return err
}

func (l *Log) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	history.Prepare(entry)

	// seq assignment and trimming must not interleave between writers.
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM history`).Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	seq++

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (id, kind, model, signature, summary, success, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), entry.Model, entry.Signature, entry.Summary,
		entry.Success, entry.CreatedAt, seq,
	); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE seq NOT IN (
			SELECT seq FROM history ORDER BY seq DESC LIMIT ?
		)`, l.capacity,
	); err != nil {
		return fmt.Errorf("trim: %w", err)
	}
	return tx.Commit()
}

func (l *Log) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = l.capacity
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, kind, model, signature, summary, success, created_at
		 FROM history ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Model, &e.Signature, &e.Summary, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.HistoryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
