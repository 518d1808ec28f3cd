package types

import "github.com/google/uuid"

// ID identifies a stored record. Fresh IDs are UUIDs, but imported data
// may carry identifiers minted elsewhere, so any non-empty string is a
// valid ID and no format check is applied on read.
type ID string

// NewID generates a new random ID
func NewID() ID {
	return ID(uuid.New().String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsZero checks if the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}
