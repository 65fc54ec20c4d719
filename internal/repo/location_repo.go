package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/coordinote/server/internal/model"
)

// LocationRepo defines the interface for location catalog operations
type LocationRepo interface {
	Get(ctx context.Context, id int64) (model.Location, error)
	List(ctx context.Context, category string) ([]model.Location, error)
	InsertBatch(ctx context.Context, locations []model.Location) (int64, error)
}

type locationRepo struct {
	db *sql.DB
}

// NewLocationRepo creates a new LocationRepo instance
func NewLocationRepo(db *sql.DB) LocationRepo {
	return &locationRepo{db: db}
}

// Get retrieves a catalog location by ID
func (r *locationRepo) Get(ctx context.Context, id int64) (model.Location, error) {
	query := `
		SELECT location_id, l_name, category, lon, lat
		FROM locations
		WHERE location_id = $1
	`
	var loc model.Location
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&loc.ID,
		&loc.Name,
		&loc.Category,
		&loc.Coord.Lon,
		&loc.Coord.Lat,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Location{}, fmt.Errorf("location %d: %w", id, ErrNotFound)
		}
		return model.Location{}, fmt.Errorf("query location: %w", err)
	}
	return loc, nil
}

// List returns catalog locations, optionally filtered by category
func (r *locationRepo) List(ctx context.Context, category string) ([]model.Location, error) {
	query := `
		SELECT location_id, l_name, category, lon, lat
		FROM locations
	`
	var args []any
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY location_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		var loc model.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Category, &loc.Coord.Lon, &loc.Coord.Lat); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return out, nil
}

// InsertBatch inserts catalog locations idempotently: rows colliding on
// (category, name) are skipped. Returns the number of rows actually inserted.
func (r *locationRepo) InsertBatch(ctx context.Context, locations []model.Location) (int64, error) {
	if len(locations) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(locations))
	args := make([]any, 0, len(locations)*4)
	for i, loc := range locations {
		base := i * 4
		placeholders = append(placeholders,
			fmt.Sprintf("($%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4))
		args = append(args, loc.Name, loc.Category, loc.Coord.Lon, loc.Coord.Lat)
	}

	query := `INSERT INTO locations (l_name, category, lon, lat) VALUES ` +
		strings.Join(placeholders, ",") +
		` ON CONFLICT (category, l_name) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert locations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
