package handlers

import (
	"log"
	"net/http"

	"github.com/coordinote/server/internal/geo"
	"github.com/coordinote/server/internal/repo"
)

// LocationHandler serves the location catalog as GeoJSON for map display
type LocationHandler struct {
	locations repo.LocationRepo
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(locations repo.LocationRepo) *LocationHandler {
	return &LocationHandler{locations: locations}
}

// HandleList handles GET /locations?category= and returns a GeoJSON
// FeatureCollection of points of interest.
func (h *LocationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	locs, err := h.locations.List(r.Context(), category)
	if err != nil {
		log.Printf("Failed to list locations: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list locations")
		return
	}

	features := make([]geo.Feature, 0, len(locs))
	for _, loc := range locs {
		features = append(features, geo.PointFeature(loc.Coord, map[string]any{
			"location_id": loc.ID,
			"name":        loc.Name,
			"category":    loc.Category,
		}))
	}
	respondJSON(w, http.StatusOK, geo.NewFeatureCollection(features))
}
