// Package leases persists build leases and owns their state transitions.
// A lease leaves the active state exactly once; the conditional updates
// here are the linearization point concurrent workers agree on.
package leases

import (
	"context"
	"time"

	"github.com/buildvault/buildvault/internal/server/models"
)

type Repository interface {
	// Create inserts a new active lease.
	Create(ctx context.Context, lease *models.Lease) (*models.Lease, error)

	// Get returns a lease by id, common.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*models.Lease, error)

	// Consume transitions an active, unexpired lease to consumed. Exactly
	// one concurrent caller succeeds; the rest get ErrAlreadyConsumed,
	// ErrExpired or ErrNotFound depending on what they lost to.
	Consume(ctx context.Context, id string) error

	// ExpireDue moves active leases whose time bound has elapsed to the
	// expired state. Returns the number of leases transitioned.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
