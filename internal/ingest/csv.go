// Package ingest loads point-of-interest CSV exports into the location
// catalog. Files are semicolon-delimited with a header row and columns
// name;lat;lon, matching the metro-stations exports the catalog started from.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coordinote/server/internal/model"
	"github.com/coordinote/server/internal/repo"
)

// Bounds is a lon/lat bounding box used to reject obviously bad rows
type Bounds struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// LisbonBounds is a rough bounding box around the Lisbon metro area
var LisbonBounds = Bounds{LonMin: -10.5, LonMax: -7.5, LatMin: 37.0, LatMax: 41.0}

// Contains reports whether the coordinate lies inside the box
func (b Bounds) Contains(c model.Coordinate) bool {
	return c.Lon >= b.LonMin && c.Lon <= b.LonMax &&
		c.Lat >= b.LatMin && c.Lat <= b.LatMax
}

// Stats summarizes one ingestion run
type Stats struct {
	Rows     int   // data rows read
	Skipped  int   // rows rejected (malformed or out of bounds)
	Inserted int64 // rows actually inserted (duplicates are not)
}

// Loader ingests CSV files into the location catalog
type Loader struct {
	locations repo.LocationRepo
	bounds    Bounds
}

// NewLoader creates a loader validating rows against the given bounds
func NewLoader(locations repo.LocationRepo, bounds Bounds) *Loader {
	return &Loader{locations: locations, bounds: bounds}
}

// LoadCSV reads a semicolon-delimited name;lat;lon file and inserts the rows
// under the given category. Inserts are idempotent: re-running the same file
// adds nothing. Malformed and out-of-bounds rows are counted and skipped,
// not fatal.
func (l *Loader) LoadCSV(ctx context.Context, r io.Reader, category string) (Stats, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return Stats{}, fmt.Errorf("category is required")
	}

	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	var stats Stats
	var batch []model.Location
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		stats.Rows++

		loc, ok := l.parseRow(record, category)
		if !ok {
			stats.Skipped++
			continue
		}
		batch = append(batch, loc)
	}

	inserted, err := l.locations.InsertBatch(ctx, batch)
	if err != nil {
		return stats, fmt.Errorf("insert locations: %w", err)
	}
	stats.Inserted = inserted
	return stats, nil
}

func (l *Loader) parseRow(record []string, category string) (model.Location, bool) {
	if len(record) < 3 {
		return model.Location{}, false
	}
	name := strings.TrimSpace(record[0])
	if name == "" {
		return model.Location{}, false
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if latErr != nil || lonErr != nil {
		return model.Location{}, false
	}
	coord := model.Coordinate{Lon: lon, Lat: lat}
	if !l.bounds.Contains(coord) {
		return model.Location{}, false
	}
	return model.Location{Name: name, Category: category, Coord: coord}, true
}
