package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coordinote/server/internal/model"
)

// MessageRepo defines the interface for message repository operations.
// Messages are immutable after creation; there is no update or delete.
type MessageRepo interface {
	Create(ctx context.Context, m model.Message) (model.Message, error)
	GetByID(ctx context.Context, id int64) (model.Message, error)
	ListByUniverse(ctx context.Context, uniID int64) ([]model.Message, error)
}

type messageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new MessageRepo instance
func NewMessageRepo(db *sql.DB) MessageRepo {
	return &messageRepo{db: db}
}

// messageColumns resolves the anchoring coordinate: catalog coordinate when
// location_id is set, inline coordinate otherwise.
const messageColumns = `
	m.m_id, m.uni_id, m.creator_id, m.m_type, m.m_txt, m.poll,
	m.unl_rad, m.view_once, m.location_id,
	COALESCE(l.l_name, '') AS location_name,
	COALESCE(l.lon, m.lon) AS lon,
	COALESCE(l.lat, m.lat) AS lat,
	m.created_at
`

// Create inserts a new message. Exactly one of LocationID or the inline
// coordinate must be set; the schema rejects anything else.
func (r *messageRepo) Create(ctx context.Context, m model.Message) (model.Message, error) {
	var lon, lat any
	if m.LocationID == nil {
		lon, lat = m.Coord.Lon, m.Coord.Lat
	}
	var poll any
	if len(m.Poll) > 0 {
		poll = []byte(m.Poll)
	}

	query := `
		INSERT INTO messages (uni_id, creator_id, m_type, m_txt, poll, unl_rad, view_once, location_id, lon, lat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING m_id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		m.UniverseID, m.CreatorID, string(m.Type), m.Text, poll,
		m.UnlockRadius, m.ViewOnce, m.LocationID, lon, lat,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// GetByID retrieves a message with its resolved coordinate
func (r *messageRepo) GetByID(ctx context.Context, id int64) (model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN locations l ON m.location_id = l.location_id
		WHERE m.m_id = $1
	`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Message{}, fmt.Errorf("message %d: %w", id, ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("query message: %w", err)
	}
	return m, nil
}

// ListByUniverse returns all messages of a universe with resolved
// coordinates. Radius filtering and ordering happen in the visibility engine.
func (r *messageRepo) ListByUniverse(ctx context.Context, uniID int64) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN locations l ON m.location_id = l.location_id
		WHERE m.uni_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, uniID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (model.Message, error) {
	var m model.Message
	var mType string
	var poll []byte
	var locationID sql.NullInt64
	if err := row.Scan(
		&m.ID, &m.UniverseID, &m.CreatorID, &mType, &m.Text, &poll,
		&m.UnlockRadius, &m.ViewOnce, &locationID,
		&m.LocationName, &m.Coord.Lon, &m.Coord.Lat,
		&m.CreatedAt,
	); err != nil {
		return model.Message{}, err
	}
	m.Type = model.MessageType(mType)
	if len(poll) > 0 {
		m.Poll = poll
	}
	if locationID.Valid {
		id := locationID.Int64
		m.LocationID = &id
	}
	return m, nil
}
