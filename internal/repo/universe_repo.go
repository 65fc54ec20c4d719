package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/coordinote/server/internal/model"
)

// UniverseRepo defines the interface for universe and membership operations
type UniverseRepo interface {
	Create(ctx context.Context, name, description string, access model.UniverseAccess, creatorID int64) (model.Universe, error)
	ListForUser(ctx context.Context, userID int64) ([]model.UniverseSummary, error)
	IsMember(ctx context.Context, userID, uniID int64) (bool, error)
	Join(ctx context.Context, userID, uniID int64) error
	Leave(ctx context.Context, userID, uniID int64) error
}

type universeRepo struct {
	db *sql.DB
}

// NewUniverseRepo creates a new UniverseRepo instance
func NewUniverseRepo(db *sql.DB) UniverseRepo {
	return &universeRepo{db: db}
}

// Create inserts a universe and its creator membership in one transaction,
// so the creator is a member from the moment the universe exists.
func (r *universeRepo) Create(ctx context.Context, name, description string, access model.UniverseAccess, creatorID int64) (model.Universe, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Universe{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	uni := model.Universe{
		Name:        name,
		Description: description,
		Access:      access,
		CreatorID:   creatorID,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO universes (uni_name, descri, pub_priv, creator_id)
		VALUES ($1, $2, $3, $4)
		RETURNING uni_id, created_at
	`, name, description, string(access), creatorID).Scan(&uni.ID, &uni.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return model.Universe{}, fmt.Errorf("universe %q: %w", name, ErrDuplicate)
		}
		return model.Universe{}, fmt.Errorf("insert universe: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (uni_id, us_id)
		VALUES ($1, $2)
	`, uni.ID, creatorID)
	if err != nil {
		return model.Universe{}, fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Universe{}, fmt.Errorf("commit universe tx: %w", err)
	}
	return uni, nil
}

// ListForUser returns the universes the user belongs to, with member and
// message counts for the frontend listing.
func (r *universeRepo) ListForUser(ctx context.Context, userID int64) ([]model.UniverseSummary, error) {
	query := `
		SELECT u.uni_id, u.uni_name, u.descri, u.pub_priv, u.creator_id, u.created_at,
		       (SELECT COUNT(*) FROM memberships mm WHERE mm.uni_id = u.uni_id) AS member_count,
		       (SELECT COUNT(*) FROM messages ms WHERE ms.uni_id = u.uni_id) AS message_count
		FROM universes u
		JOIN memberships m ON m.uni_id = u.uni_id
		WHERE m.us_id = $1
		ORDER BY u.uni_name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query universes: %w", err)
	}
	defer rows.Close()

	var out []model.UniverseSummary
	for rows.Next() {
		var s model.UniverseSummary
		var access string
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &access, &s.CreatorID, &s.CreatedAt, &s.MemberCount, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scan universe: %w", err)
		}
		s.Access = model.UniverseAccess(access)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universes: %w", err)
	}
	return out, nil
}

// IsMember reports whether the membership pair exists
func (r *universeRepo) IsMember(ctx context.Context, userID, uniID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM memberships WHERE uni_id = $1 AND us_id = $2
		)
	`, uniID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

// Join adds the user to the universe. Joining twice is a no-op. Joining a
// universe that does not exist returns ErrNotFound.
func (r *universeRepo) Join(ctx context.Context, userID, uniID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memberships (uni_id, us_id)
		VALUES ($1, $2)
		ON CONFLICT (uni_id, us_id) DO NOTHING
	`, uniID, userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return fmt.Errorf("universe %d: %w", uniID, ErrNotFound)
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// Leave removes the membership if present. Leaving a universe the user is
// not a member of is a no-op.
func (r *universeRepo) Leave(ctx context.Context, userID, uniID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM memberships WHERE uni_id = $1 AND us_id = $2
	`, uniID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}
