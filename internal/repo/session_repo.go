package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coordinote/server/internal/model"
)

// SessionRepo defines the interface for session repository operations.
// Sessions are append-only: rows are created at issuance and read back for
// validation; there is no update or revocation path.
type SessionRepo interface {
	Create(ctx context.Context, s model.Session) error
	GetByToken(ctx context.Context, token string) (model.Session, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Create persists a new session row
func (r *sessionRepo) Create(ctx context.Context, s model.Session) error {
	query := `
		INSERT INTO sessions (token, us_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, s.Token, s.UserID, s.IssuedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByToken returns the session row for a token regardless of expiry;
// the caller classifies expired sessions.
func (r *sessionRepo) GetByToken(ctx context.Context, token string) (model.Session, error) {
	query := `
		SELECT token, us_id, issued_at, expires_at
		FROM sessions
		WHERE token = $1
	`
	var s model.Session
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&s.Token,
		&s.UserID,
		&s.IssuedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, fmt.Errorf("session: %w", ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}
