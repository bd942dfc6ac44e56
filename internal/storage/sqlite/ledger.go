package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/vcwatch/internal/dedup"
)

// Ledger is a dedup.Tracker backed by SQLite. It follows the same rules as
// dedup.MemoryTracker.
type Ledger struct {
	db            *sql.DB
	renotifyAfter time.Duration
	now           func() time.Time
}

var _ dedup.Tracker = (*Ledger)(nil)

// NewLedger opens the ledger database at path.
func NewLedger(ctx context.Context, path string, renotifyAfter time.Duration) (*Ledger, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db, renotifyAfter: renotifyAfter, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Observe implements dedup.Tracker.
func (l *Ledger) Observe(ctx context.Context, agentID, scope, key string) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := l.now()

	var prevKey string
	var seenAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT key, seen_at FROM dedup_ledger WHERE agent_id = ? AND scope = ?`,
		agentID, scope).Scan(&prevKey, &seenAt)

	repeat := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("failed to read ledger: %w", err)
	case prevKey == key:
		repeat = true
		if l.renotifyAfter > 0 && now.Sub(time.Unix(0, seenAt)) >= l.renotifyAfter {
			repeat = false
		}
	}

	if repeat {
		_, err = tx.ExecContext(ctx,
			`UPDATE dedup_ledger SET repeats = repeats + 1 WHERE agent_id = ? AND scope = ?`,
			agentID, scope)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dedup_ledger (agent_id, scope, key, seen_at, repeats)
			VALUES (?, ?, ?, ?, 0)
			ON CONFLICT(agent_id, scope) DO UPDATE SET
				key = excluded.key,
				seen_at = excluded.seen_at,
				repeats = 0`,
			agentID, scope, key, now.UnixNano())
	}
	if err != nil {
		return false, fmt.Errorf("failed to update ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ledger: %w", err)
	}
	return repeat, nil
}

// Forget implements dedup.Tracker.
func (l *Ledger) Forget(ctx context.Context, agentID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM dedup_ledger WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("failed to forget agent %s: %w", agentID, err)
	}
	return nil
}

// Repeats returns how many consecutive repeats were suppressed for the
// current key of (agentID, scope).
func (l *Ledger) Repeats(ctx context.Context, agentID, scope string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT repeats FROM dedup_ledger WHERE agent_id = ? AND scope = ?`,
		agentID, scope).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger: %w", err)
	}
	return n, nil
}

// Prune deletes entries not refreshed within maxAge.
func (l *Ledger) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := l.now().Add(-maxAge).UnixNano()
	res, err := l.db.ExecContext(ctx, `DELETE FROM dedup_ledger WHERE seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return res.RowsAffected()
}
