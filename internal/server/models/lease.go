// Package models defines server-side data models persisted in the database.
package models

import "time"

// Lease states. A lease starts active and ends in exactly one of the two
// terminal states; there are no transitions out of consumed or expired.
const (
	LeaseStateActive   = "active"
	LeaseStateConsumed = "consumed"
	LeaseStateExpired  = "expired"
)

// Lease authorizes one build/run cycle against one encrypted secret bundle.
// The secret content id and the DEK version that protects it always travel
// together; a lease row is the durable record of that pairing.
type Lease struct {
	// ID is the lease identifier (UUID).
	ID string `db:"id"`
	// Owner is the wallet address of the uploader.
	Owner string `db:"owner"`
	// SecretCID is the content id of the encrypted secret bundle.
	SecretCID string `db:"secret_cid"`
	// DEKVersion identifies the key generation protecting SecretCID.
	DEKVersion int64 `db:"dek_version"`
	// State is one of LeaseStateActive/Consumed/Expired.
	State string `db:"state"`

	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
