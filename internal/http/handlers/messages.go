package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coordinote/server/internal/middleware"
	"github.com/coordinote/server/internal/model"
	"github.com/coordinote/server/internal/visibility"
)

// MessageHandler exposes the visibility engine over HTTP
type MessageHandler struct {
	engine *visibility.Engine
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(engine *visibility.Engine) *MessageHandler {
	return &MessageHandler{engine: engine}
}

// createMessageRequest is the request body for POST /messages
type createMessageRequest struct {
	UniverseID   int64           `json:"universe_id"`
	MessageType  string          `json:"message_type"`
	Text         string          `json:"text_content"`
	Question     json.RawMessage `json:"question,omitempty"`
	UnlockRadius float64         `json:"unlock_radius"`
	ViewOnce     bool            `json:"view_once"`
	LocationID   *int64          `json:"location_id,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	Latitude     *float64        `json:"latitude,omitempty"`
}

// openRequest is the optional request body for POST /messages/{mID}/open.
// Supplying the coordinate opts into proximity re-validation at open time.
type openRequest struct {
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
}

// HandleNearby handles GET /messages/nearby?lat&lon&uni_id&radius
func (h *MessageHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	latStr, lonStr, uniStr := q.Get("lat"), q.Get("lon"), q.Get("uni_id")
	if latStr == "" || lonStr == "" || uniStr == "" {
		respondWithError(w, http.StatusBadRequest, "lat, lon and uni_id are required parameters")
		return
	}

	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	uniID, uniErr := strconv.ParseInt(uniStr, 10, 64)
	if latErr != nil || lonErr != nil || uniErr != nil {
		respondWithError(w, http.StatusBadRequest, "lat, lon and uni_id must be numeric")
		return
	}

	searchRadius := 0.0
	if radiusStr := q.Get("radius"); radiusStr != "" {
		var err error
		searchRadius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil || searchRadius <= 0 {
			respondWithError(w, http.StatusBadRequest, "radius must be a positive number")
			return
		}
	}

	token := middleware.TokenFromHeader(r)
	views, err := h.engine.ListNearby(r.Context(), token, model.Coordinate{Lon: lon, Lat: lat}, uniID, searchRadius)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// HandleOpen handles POST /messages/{mID}/open
func (h *MessageHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	messageID, err := strconv.ParseInt(chi.URLParam(r, "mID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	// The body is optional; an empty body means no proximity re-check.
	var caller *model.Coordinate
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Longitude != nil || req.Latitude != nil {
		if req.Longitude == nil || req.Latitude == nil {
			respondWithError(w, http.StatusBadRequest, "longitude and latitude must both be supplied")
			return
		}
		caller = &model.Coordinate{Lon: *req.Longitude, Lat: *req.Latitude}
	}

	token := middleware.TokenFromHeader(r)
	result, err := h.engine.Open(r.Context(), token, messageID, caller)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	status := http.StatusOK
	switch result.Status {
	case visibility.StatusNotFound:
		status = http.StatusNotFound
	case visibility.StatusForbidden:
		status = http.StatusForbidden
	}
	respondJSON(w, status, result)
}

// HandleCreate handles POST /messages
func (h *MessageHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UniverseID == 0 {
		respondWithError(w, http.StatusBadRequest, "universe_id is required")
		return
	}

	draft := visibility.Draft{
		UniverseID:   req.UniverseID,
		Type:         model.MessageType(req.MessageType),
		Text:         req.Text,
		Poll:         req.Question,
		UnlockRadius: req.UnlockRadius,
		ViewOnce:     req.ViewOnce,
		LocationID:   req.LocationID,
	}
	if req.Longitude != nil && req.Latitude != nil {
		draft.Coord = &model.Coordinate{Lon: *req.Longitude, Lat: *req.Latitude}
	}

	token := middleware.TokenFromHeader(r)
	msg, err := h.engine.Post(r.Context(), token, draft)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Message created successfully",
		"m_id":    msg.ID,
	})
}

// respondEngineError maps engine failures to HTTP without leaking storage
// detail to the client.
func (h *MessageHandler) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, visibility.ErrUnauthenticated):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, visibility.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "not a member of this universe")
	case errors.Is(err, visibility.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not found")
	case errors.Is(err, visibility.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Visibility engine error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}
