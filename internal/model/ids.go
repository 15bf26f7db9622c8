package model

import "github.com/google/uuid"

// NewID returns a time-sortable UUIDv7 string.
//
// Panics if the system random source fails, matching uuid.Must.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
