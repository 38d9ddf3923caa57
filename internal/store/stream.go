package store

import "github.com/google/uuid"

// StreamTokenGenerator hands out stream tokens for new journal streams.
type StreamTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 stream tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so streams sort by
// creation time when listed. The timestamp is never used for ordering events.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
