package model

import (
	"encoding/json"
	"time"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

// User represents a registered user
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Session represents an opaque bearer session. Rows are never mutated after
// issuance; expiry is evaluated on read, never written back.
type Session struct {
	Token     string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UniverseAccess is the visibility setting of a universe
type UniverseAccess string

const (
	AccessPublic  UniverseAccess = "public"
	AccessPrivate UniverseAccess = "private"
)

// Universe is a named group scoping message visibility and posting rights
type Universe struct {
	ID          int64
	Name        string
	Description string
	Access      UniverseAccess
	CreatorID   int64
	CreatedAt   time.Time
}

// UniverseSummary is a universe with member and message counts for listings
type UniverseSummary struct {
	Universe
	MemberCount  int
	MessageCount int
}

// Location is a catalog point of interest. Populated by batch ingestion,
// referenced but never mutated by messages.
type Location struct {
	ID       int64
	Name     string
	Category string
	Coord    Coordinate
}

// MessageType distinguishes plain text notes from polls
type MessageType string

const (
	TypeText MessageType = "text"
	TypePoll MessageType = "poll"
)

// Message is a geographically anchored note. A message is anchored either
// through LocationID (resolved against the catalog) or an inline coordinate;
// exactly one of the two is set at creation. Coord always holds the resolved
// coordinate when a message is read back.
type Message struct {
	ID           int64
	UniverseID   int64
	CreatorID    int64
	Type         MessageType
	Text         string
	Poll         json.RawMessage
	UnlockRadius float64
	ViewOnce     bool
	LocationID   *int64
	LocationName string
	Coord        Coordinate
	CreatedAt    time.Time
}
