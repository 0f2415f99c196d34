// Package keys persists DEK generation records: append-only version rows
// with a single active-version marker.
package keys

import (
	"context"

	"github.com/buildvault/buildvault/internal/server/models"
)

type Repository interface {
	// ActiveVersion returns the generation new ciphertexts are sealed under.
	ActiveVersion(ctx context.Context) (int64, error)

	// GetVersion returns one generation record, common.ErrNotFound if absent.
	GetVersion(ctx context.Context, version int64) (*models.KeyVersion, error)

	// Rotate appends the next generation and atomically repoints the active
	// marker to it. Must run inside a transaction. Returns the new version.
	Rotate(ctx context.Context) (int64, error)
}
