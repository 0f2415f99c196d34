// Package ledger records idempotent associations between a wallet address
// and the content ids it uploaded, emitting append-only events that
// downstream indexers can consume exactly-once-in-effect.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Event types.
const (
	EventContentLinked = "content.linked"
)

// Event is an append-only fact. It is never mutated after creation and may
// be re-emitted; ID is deterministic for a (wallet, contentID) pair so
// consumers can deduplicate under at-least-once delivery.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	WalletAddress string            `json:"wallet_address"`
	ContentID     string            `json:"content_id"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Sequence      int64             `json:"sequence"`
}

// EventID derives the deduplication identity for a link event.
func EventID(walletAddress, contentID string) string {
	sum := sha256.Sum256([]byte(walletAddress + "|" + contentID))
	return hex.EncodeToString(sum[:])
}
