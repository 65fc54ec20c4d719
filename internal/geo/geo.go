// Package geo evaluates geodesic distance between WGS84 coordinates and
// classifies it against radii. Distances are great-circle on the mean Earth
// sphere; plain Euclidean math on (lon, lat) degrees is wrong by a large
// factor at the scales this service cares about and is never used.
package geo

import (
	"github.com/golang/geo/s2"

	"github.com/coordinote/server/internal/model"
)

// Mean Earth radius (IUGG), meters.
const earthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between a and b in meters.
// It is symmetric and returns 0 for identical coordinates.
func DistanceMeters(a, b model.Coordinate) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lon)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return pa.Distance(pb).Radians() * earthRadiusMeters
}

// WithinRadius reports whether b lies within radiusMeters of a. The boundary
// is inclusive: a caller exactly at the radius edge is within.
func WithinRadius(a, b model.Coordinate, radiusMeters float64) bool {
	return DistanceMeters(a, b) <= radiusMeters
}
