// Package blobstore implements the content-addressable store client.
// Payloads are stored in an S3-compatible bucket under keys derived from
// their SHA-256 digest, so the same bytes always land at the same address.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/buildvault/buildvault/internal/common"
)

// PutResult is the outcome of storing one payload.
type PutResult struct {
	ContentID string
	Size      int64
}

// Client stores and retrieves content-addressed payloads.
type Client interface {
	// Put stores data and returns its content id and size. Transient
	// backend failures surface as common.ErrStorageUnavailable, quota
	// rejections as common.ErrQuotaExceeded.
	Put(ctx context.Context, data []byte) (*PutResult, error)

	// Get retrieves the payload for a content id previously returned by Put.
	Get(ctx context.Context, contentID string) ([]byte, error)
}

// ContentID computes the content-addressed identifier for a payload.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// objectKey maps a content id to its bucket key.
func objectKey(contentID string) (string, error) {
	hexDigest, ok := strings.CutPrefix(contentID, "sha256:")
	if !ok || len(hexDigest) != sha256.Size*2 {
		return "", fmt.Errorf("%w: bad content id %q", common.ErrValidation, contentID)
	}
	if _, err := hex.DecodeString(hexDigest); err != nil {
		return "", fmt.Errorf("%w: bad content id %q", common.ErrValidation, contentID)
	}
	return "blobs/sha256/" + hexDigest, nil
}
