package models

import "time"

// KeyVersion is an append-only record of one DEK generation. Rows are never
// updated in place; rotation inserts a new row and repoints the single
// active-version marker.
type KeyVersion struct {
	// Version is the monotonically increasing DEK generation number.
	Version int64 `db:"version"`
	// Active marks the generation new ciphertexts are sealed under.
	// Exactly one row is active at any time.
	Active bool `db:"active"`

	CreatedAt time.Time `db:"created_at"`
}
