package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// ViewRepo is the view ledger: it records per-user consumption of view-once
// messages. Rows are append-only and the (m_id, us_id) primary key is the
// sole source of truth for "already consumed".
type ViewRepo interface {
	HasSeen(ctx context.Context, messageID, userID int64) (bool, error)
	RecordSeen(ctx context.Context, messageID, userID int64) error
}

type viewRepo struct {
	db *sql.DB
}

// NewViewRepo creates a new ViewRepo instance
func NewViewRepo(db *sql.DB) ViewRepo {
	return &viewRepo{db: db}
}

// HasSeen reports whether the user has already consumed the message
func (r *viewRepo) HasSeen(ctx context.Context, messageID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM message_views WHERE m_id = $1 AND us_id = $2
		)
	`, messageID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query view record: %w", err)
	}
	return exists, nil
}

// RecordSeen attempts the insert unconditionally and lets the primary key
// arbitrate: when two requests race, the database accepts exactly one row and
// the loser sees zero rows affected, which is reported as ErrAlreadySeen.
// Checking for an existing row first and inserting afterwards would race.
func (r *viewRepo) RecordSeen(ctx context.Context, messageID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO message_views (m_id, us_id)
		VALUES ($1, $2)
		ON CONFLICT (m_id, us_id) DO NOTHING
	`, messageID, userID)
	if err != nil {
		return fmt.Errorf("insert view record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %d user %d: %w", messageID, userID, ErrAlreadySeen)
	}
	return nil
}
