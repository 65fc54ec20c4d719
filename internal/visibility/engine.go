// Package visibility answers "what can this user see right now". The engine
// orchestrates session validation, universe membership, geodesic distance
// evaluation and the view ledger, and returns explicit decisions; storage
// errors never leak past it unclassified.
package visibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coordinote/server/internal/auth"
	"github.com/coordinote/server/internal/geo"
	"github.com/coordinote/server/internal/model"
	"github.com/coordinote/server/internal/repo"
)

// DefaultSearchRadius bounds which messages are surfaced for discovery when
// the caller does not override it. It is independent of the per-message
// unlock radius: a message can be discoverable yet still locked.
const DefaultSearchRadius = 1000.0

// LockedPlaceholder replaces the text of a message outside its unlock radius.
const LockedPlaceholder = "This message is locked. Get closer to read it!"

// ConsumedPlaceholder replaces the text of a view-once message the user has
// already spent, regardless of proximity.
const ConsumedPlaceholder = "This message has already been viewed."

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation")
)

// MessageView is a single listing decision for one message. Distance,
// unlock radius and can_open are always populated, locked or not, so a
// client can render "get closer" UX.
type MessageView struct {
	ID             int64           `json:"m_id"`
	Type           string          `json:"m_type"`
	UniverseID     int64           `json:"uni_id"`
	LocationID     *int64          `json:"location_id,omitempty"`
	LocationName   string          `json:"location_name,omitempty"`
	Longitude      float64         `json:"longitude"`
	Latitude       float64         `json:"latitude"`
	DistanceMeters float64         `json:"distance_meters"`
	UnlockRadius   float64         `json:"unl_rad"`
	CanOpen        bool            `json:"can_open"`
	ViewOnce       bool            `json:"view_once"`
	Text           string          `json:"m_txt"`
	Poll           json.RawMessage `json:"poll,omitempty"`
}

// OpenStatus is the outcome of an Open call
type OpenStatus string

const (
	StatusOpened        OpenStatus = "opened"
	StatusLocked        OpenStatus = "locked"
	StatusAlreadyViewed OpenStatus = "already_viewed"
	StatusNotFound      OpenStatus = "not_found"
	StatusForbidden     OpenStatus = "forbidden"
)

// OpenResult carries the outcome of spending (or failing to spend) a view
type OpenResult struct {
	Status OpenStatus      `json:"status"`
	Text   string          `json:"text,omitempty"`
	Poll   json.RawMessage `json:"poll,omitempty"`
}

// Draft is a message submission prior to validation
type Draft struct {
	UniverseID   int64
	Type         model.MessageType
	Text         string
	Poll         json.RawMessage
	UnlockRadius float64
	ViewOnce     bool
	LocationID   *int64
	Coord        *model.Coordinate
}

// Engine is the message visibility engine
type Engine struct {
	sessions  *auth.Service
	universes repo.UniverseRepo
	messages  repo.MessageRepo
	locations repo.LocationRepo
	views     repo.ViewRepo
}

// NewEngine creates a new visibility engine
func NewEngine(sessions *auth.Service, universes repo.UniverseRepo, messages repo.MessageRepo, locations repo.LocationRepo, views repo.ViewRepo) *Engine {
	return &Engine{
		sessions:  sessions,
		universes: universes,
		messages:  messages,
		locations: locations,
		views:     views,
	}
}

// authorize validates the session and the caller's membership in uniID
func (e *Engine) authorize(ctx context.Context, token string, uniID int64) (int64, error) {
	userID, err := e.sessions.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenExpired) {
			return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return 0, fmt.Errorf("validate session: %w", err)
	}

	member, err := e.universes.IsMember(ctx, userID, uniID)
	if err != nil {
		return 0, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return 0, fmt.Errorf("universe %d: %w", uniID, ErrForbidden)
	}
	return userID, nil
}

// ListNearby returns the caller's view of every message in the universe whose
// anchor lies within searchRadius of the caller, closest first (ties broken
// by ascending message ID). Content is masked for messages outside their
// unlock radius, and for view-once messages the caller has already consumed
// even when in range.
func (e *Engine) ListNearby(ctx context.Context, token string, caller model.Coordinate, uniID int64, searchRadius float64) ([]MessageView, error) {
	if searchRadius <= 0 {
		searchRadius = DefaultSearchRadius
	}

	userID, err := e.authorize(ctx, token, uniID)
	if err != nil {
		return nil, err
	}

	msgs, err := e.messages.ListByUniverse(ctx, uniID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		d := geo.DistanceMeters(caller, m.Coord)
		if d > searchRadius {
			continue
		}

		v := MessageView{
			ID:             m.ID,
			Type:           string(m.Type),
			UniverseID:     m.UniverseID,
			LocationID:     m.LocationID,
			LocationName:   m.LocationName,
			Longitude:      m.Coord.Lon,
			Latitude:       m.Coord.Lat,
			DistanceMeters: d,
			UnlockRadius:   m.UnlockRadius,
			CanOpen:        geo.WithinRadius(caller, m.Coord, m.UnlockRadius),
			ViewOnce:       m.ViewOnce,
		}

		consumed := false
		if m.ViewOnce {
			consumed, err = e.views.HasSeen(ctx, m.ID, userID)
			if err != nil {
				return nil, fmt.Errorf("check view record: %w", err)
			}
		}

		// Consumption takes precedence over proximity: once the one-time
		// reveal is spent the content stays hidden even in range.
		switch {
		case consumed:
			v.Text = ConsumedPlaceholder
		case !v.CanOpen:
			v.Text = LockedPlaceholder
		default:
			v.Text = m.Text
			v.Poll = m.Poll
		}

		views = append(views, v)
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].DistanceMeters != views[j].DistanceMeters {
			return views[i].DistanceMeters < views[j].DistanceMeters
		}
		return views[i].ID < views[j].ID
	})
	return views, nil
}

// Open reveals a message's content. Non-view-once messages are repeatable.
// For view-once messages the ledger's atomic insert decides: exactly one
// concurrent caller per user gets StatusOpened, everyone else
// StatusAlreadyViewed.
//
// When the caller supplies its coordinate the unlock radius is re-validated
// here as well, a deliberate strengthening over listing-time-only gating: a
// one-time view should not be spendable from afar. Callers that omit the
// coordinate get the listing-gated behavior unchanged.
func (e *Engine) Open(ctx context.Context, token string, messageID int64, caller *model.Coordinate) (OpenResult, error) {
	userID, err := e.sessions.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenExpired) {
			return OpenResult{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return OpenResult{}, fmt.Errorf("validate session: %w", err)
	}

	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return OpenResult{Status: StatusNotFound}, nil
		}
		return OpenResult{}, fmt.Errorf("get message: %w", err)
	}

	member, err := e.universes.IsMember(ctx, userID, msg.UniverseID)
	if err != nil {
		return OpenResult{}, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return OpenResult{Status: StatusForbidden}, nil
	}

	if caller != nil && !geo.WithinRadius(*caller, msg.Coord, msg.UnlockRadius) {
		return OpenResult{Status: StatusLocked}, nil
	}

	if !msg.ViewOnce {
		return OpenResult{Status: StatusOpened, Text: msg.Text, Poll: msg.Poll}, nil
	}

	if err := e.views.RecordSeen(ctx, messageID, userID); err != nil {
		if errors.Is(err, repo.ErrAlreadySeen) {
			return OpenResult{Status: StatusAlreadyViewed}, nil
		}
		return OpenResult{}, fmt.Errorf("record view: %w", err)
	}
	return OpenResult{Status: StatusOpened, Text: msg.Text, Poll: msg.Poll}, nil
}

// Post creates a message in a universe on behalf of the session owner.
// Membership is checked before anything is written.
func (e *Engine) Post(ctx context.Context, token string, draft Draft) (model.Message, error) {
	userID, err := e.authorize(ctx, token, draft.UniverseID)
	if err != nil {
		return model.Message{}, err
	}

	if err := validateDraft(draft); err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		UniverseID:   draft.UniverseID,
		CreatorID:    userID,
		Type:         draft.Type,
		Text:         draft.Text,
		Poll:         draft.Poll,
		UnlockRadius: draft.UnlockRadius,
		ViewOnce:     draft.ViewOnce,
		LocationID:   draft.LocationID,
	}

	if draft.LocationID != nil {
		loc, err := e.locations.Get(ctx, *draft.LocationID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return model.Message{}, fmt.Errorf("location %d: %w", *draft.LocationID, ErrNotFound)
			}
			return model.Message{}, fmt.Errorf("resolve location: %w", err)
		}
		msg.Coord = loc.Coord
		msg.LocationName = loc.Name
	} else {
		msg.Coord = *draft.Coord
	}

	created, err := e.messages.Create(ctx, msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	return created, nil
}

func validateDraft(d Draft) error {
	var problems []string
	if d.Type != model.TypeText && d.Type != model.TypePoll {
		problems = append(problems, "message_type must be text or poll")
	}
	if strings.TrimSpace(d.Text) == "" {
		problems = append(problems, "text is required")
	}
	if d.Type == model.TypePoll && len(d.Poll) == 0 {
		problems = append(problems, "poll payload is required for poll messages")
	}
	if d.UnlockRadius <= 0 {
		problems = append(problems, "unlock_radius must be positive")
	}
	if (d.LocationID == nil) == (d.Coord == nil) {
		problems = append(problems, "exactly one of location_id or coordinate is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
