// Package keyring manages versioned data encryption keys and implements the
// secret encryption service: sealing secret bundles under the active DEK and
// opening them again for ticket-gated retrieval.
//
// DEK generations are append-only records with a single active-version
// marker; keys themselves are derived from the service master key, so
// rotation never makes an old ciphertext unreadable.
package keyring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/cryptox"
	"github.com/buildvault/buildvault/internal/dbx"
	"github.com/buildvault/buildvault/internal/server/repositories/repomanager"
)

// Keyring resolves DEK versions to key material.
type Keyring struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	masterKey   []byte
}

func NewKeyring(db *sql.DB, m repomanager.RepositoryManager, masterKey []byte) *Keyring {
	return &Keyring{db: db, repomanager: m, masterKey: masterKey}
}

// ActiveVersion returns the generation new ciphertexts must be sealed under.
func (k *Keyring) ActiveVersion(ctx context.Context) (int64, error) {
	version, err := k.repomanager.Keys(k.db).ActiveVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: reading active version: %v", common.ErrKeyServiceUnavailable, err)
	}
	return version, nil
}

// KeyFor derives the DEK for a recorded generation. Unknown versions fail
// with common.ErrNotFound so a bad (cid, version) pair is caught before any
// decryption is attempted.
func (k *Keyring) KeyFor(ctx context.Context, version int64) ([]byte, error) {
	if _, err := k.repomanager.Keys(k.db).GetVersion(ctx, version); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: dek version %d", common.ErrNotFound, version)
		}
		return nil, fmt.Errorf("%w: reading version %d: %v", common.ErrKeyServiceUnavailable, version, err)
	}
	return cryptox.DeriveDEK(k.masterKey, version)
}

// Rotate appends the next DEK generation and repoints the active marker,
// in one transaction. Returns the new active version.
func (k *Keyring) Rotate(ctx context.Context) (int64, error) {
	var version int64
	err := dbx.WithTx(ctx, k.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		v, err := k.repomanager.Keys(tx).Rotate(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: rotate: %v", common.ErrKeyServiceUnavailable, err)
	}
	return version, nil
}
