package keyring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/cryptox"
	"github.com/buildvault/buildvault/internal/logging"
	"github.com/buildvault/buildvault/internal/server/blobstore"
	"github.com/buildvault/buildvault/internal/server/bundle"
)

// KeySource resolves DEK versions; satisfied by *Keyring.
type KeySource interface {
	ActiveVersion(ctx context.Context) (int64, error)
	KeyFor(ctx context.Context, version int64) ([]byte, error)
}

// EncryptResult is the durable outcome of sealing one secret bundle. The
// content id and DEK version must always travel together; neither is
// meaningful alone.
type EncryptResult struct {
	ContentID  string
	DEKVersion int64
	Size       int64
}

// envelope is the stored ciphertext format. The DEK version is embedded so
// the blob itself is self-describing.
type envelope struct {
	DEKVersion int64  `json:"dek_version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Service seals secret bundles under the active DEK and stores the result
// in the content-addressable store.
type Service struct {
	keys   KeySource
	store  blobstore.Client
	logger logging.Logger
}

func NewService(keys KeySource, store blobstore.Client, logger logging.Logger) *Service {
	return &Service{
		keys:   keys,
		store:  store,
		logger: logger.With("module", "keyring_service"),
	}
}

// EncryptAndStore seals the secret files under the current active DEK and
// stores the envelope. Returns the envelope's content id together with the
// DEK version used.
func (s *Service) EncryptAndStore(ctx context.Context, secretFiles map[string][]byte) (*EncryptResult, error) {
	if len(secretFiles) == 0 {
		return nil, fmt.Errorf("%w: no secret files", common.ErrValidation)
	}

	version, err := s.keys.ActiveVersion(ctx)
	if err != nil {
		return nil, err
	}
	key, err := s.keys.KeyFor(ctx, version)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	// Same codec the code partition uses, so the plaintext is deterministic.
	plaintext, err := bundle.EncodeFiles(secretFiles)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := cryptox.Seal(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("%w: seal: %v", common.ErrKeyServiceUnavailable, err)
	}

	blob, err := json.Marshal(envelope{DEKVersion: version, Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling envelope: %v", common.ErrKeyServiceUnavailable, err)
	}

	put, err := s.store.Put(ctx, blob)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "sealed secret bundle", "cid", put.ContentID, "dek_version", version, "files", len(secretFiles))

	return &EncryptResult{ContentID: put.ContentID, DEKVersion: version, Size: put.Size}, nil
}

// Open fetches and decrypts a secret bundle. The caller supplies the DEK
// version recorded alongside the content id; a mismatch with the stored
// envelope fails before any key is derived.
func (s *Service) Open(ctx context.Context, contentID string, dekVersion int64) (map[string][]byte, error) {
	blob, err := s.store.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: bad envelope for %s", common.ErrValidation, contentID)
	}
	if env.DEKVersion != dekVersion {
		return nil, fmt.Errorf("%w: dek version mismatch for %s: recorded %d, envelope %d",
			common.ErrValidation, contentID, dekVersion, env.DEKVersion)
	}

	key, err := s.keys.KeyFor(ctx, dekVersion)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	plaintext, err := cryptox.Open(env.Ciphertext, env.Nonce, key)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", common.ErrKeyServiceUnavailable, err)
	}

	files, err := bundle.DecodeFiles(plaintext)
	if err != nil {
		return nil, fmt.Errorf("bundle payload for %s: %w", contentID, err)
	}
	return files, nil
}
