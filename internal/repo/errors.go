package repo

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint
	ErrDuplicate = errors.New("duplicate")
	// ErrAlreadySeen is returned by the view ledger when the (message, user)
	// pair has already been recorded
	ErrAlreadySeen = errors.New("already seen")
)
