package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coordinote/server/internal/middleware"
	"github.com/coordinote/server/internal/model"
	"github.com/coordinote/server/internal/repo"
)

// UniverseHandler handles universe listing, creation and membership endpoints
type UniverseHandler struct {
	universes repo.UniverseRepo
}

// NewUniverseHandler creates a new universe handler
func NewUniverseHandler(universes repo.UniverseRepo) *UniverseHandler {
	return &UniverseHandler{universes: universes}
}

// createUniverseRequest is the request body for POST /universes
type createUniverseRequest struct {
	Name        string `json:"universe_name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// universeResponse is a universe object in API responses
type universeResponse struct {
	ID           int64  `json:"uni_id"`
	Name         string `json:"uni_name"`
	Description  string `json:"descri"`
	Access       string `json:"pub_priv"`
	MemberCount  int    `json:"member_count"`
	MessageCount int    `json:"message_count"`
}

// HandleList handles GET /universes (the caller's universes)
func (h *UniverseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summaries, err := h.universes.ListForUser(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to list universes: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list universes")
		return
	}

	out := make([]universeResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, universeResponse{
			ID:           s.ID,
			Name:         s.Name,
			Description:  s.Description,
			Access:       string(s.Access),
			MemberCount:  s.MemberCount,
			MessageCount: s.MessageCount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"universes": out})
}

// HandleCreate handles POST /universes. The creator becomes the first member.
func (h *UniverseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createUniverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 3 {
		respondWithError(w, http.StatusBadRequest, "universe_name must be at least 3 characters")
		return
	}

	access := model.AccessPrivate
	if req.IsPublic {
		access = model.AccessPublic
	}

	uni, err := h.universes.Create(r.Context(), req.Name, req.Description, access, userID)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			respondWithError(w, http.StatusConflict, "universe name already taken")
			return
		}
		log.Printf("Failed to create universe: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to create universe")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"universe_id": uni.ID})
}

// HandleJoin handles POST /universes/{uniID}/join (idempotent)
func (h *UniverseHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	h.updateMembership(w, r, h.universes.Join, "joined")
}

// HandleLeave handles POST /universes/{uniID}/leave (no-op for non-members)
func (h *UniverseHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	h.updateMembership(w, r, h.universes.Leave, "left")
}

func (h *UniverseHandler) updateMembership(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, uniID int64) error, verb string) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	uniID, err := strconv.ParseInt(chi.URLParam(r, "uniID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid universe id")
		return
	}

	if err := op(r.Context(), userID, uniID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "universe not found")
			return
		}
		log.Printf("Failed to update membership: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to update membership")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": verb})
}
