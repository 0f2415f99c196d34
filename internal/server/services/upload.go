// Package services contains server-side business logic. This file implements
// the upload coordinator: partition the incoming file set, store the code
// partition, seal the secret partition, create the build lease and record
// the ledger link.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/logging"
	"github.com/buildvault/buildvault/internal/server/blobstore"
	"github.com/buildvault/buildvault/internal/server/bundle"
	"github.com/buildvault/buildvault/internal/server/config"
	"github.com/buildvault/buildvault/internal/server/keyring"
	"github.com/buildvault/buildvault/internal/server/ledger"
	"github.com/buildvault/buildvault/internal/server/models"
	"github.com/buildvault/buildvault/internal/server/repositories/repomanager"
)

// SecretSealer seals a secret partition under the active DEK.
// Satisfied by *keyring.Service.
type SecretSealer interface {
	EncryptAndStore(ctx context.Context, secretFiles map[string][]byte) (*keyring.EncryptResult, error)
}

// LedgerLinker records the wallet→content-id association.
// Satisfied by *ledger.Linker.
type LedgerLinker interface {
	Link(ctx context.Context, walletAddress, contentID string, metadata map[string]string) (*ledger.LinkResult, error)
}

// UploadResult is the durable outcome of one upload. SecretContentID and
// DEKVersion are either both set or both absent; LeaseID is set whenever a
// secret bundle was stored.
type UploadResult struct {
	CodeContentID   string
	CodeSize        int64
	SecretContentID string
	DEKVersion      int64
	LeaseID         string

	Files       []bundle.FileRecord
	Ignored     []string
	Tree        *bundle.FileTreeNode
	ProjectType string

	Indexed bool
}

// UploadService orchestrates partition → encrypt → store → record.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blobstore.Client
	sealer      SecretSealer
	linker      LedgerLinker
	logger      logging.Logger
	config      *config.Config
}

func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, store blobstore.Client,
	sealer SecretSealer, linker LedgerLinker, logger logging.Logger, cfg *config.Config) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: m,
		store:       store,
		sealer:      sealer,
		linker:      linker,
		logger:      logger.With("module", "upload_service"),
		config:      cfg,
	}
}

// Upload processes one project bundle for the given wallet. The result is
// atomic: a failure at any storage or encryption stage aborts the whole
// upload and nothing is linked on the ledger. Indexing failure alone does
// not fail the upload; the result is flagged Indexed=false instead.
func (s *UploadService) Upload(ctx context.Context, walletAddress string, files map[string][]byte,
	ignoreOverride, secretOverride []string) (*UploadResult, error) {

	if walletAddress == "" {
		return nil, fmt.Errorf("%w: wallet address is required", common.ErrValidation)
	}

	res, err := bundle.Partition(files, bundle.Options{
		IgnorePatterns: ignoreOverride,
		SecretPatterns: secretOverride,
		Limits: bundle.Limits{
			MaxSecretFileSize: s.config.MaxSecretFileSize,
			MaxSecretTotal:    s.config.MaxSecretTotal,
			MaxCodeTotal:      s.config.MaxCodeTotal,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}

	b := res.Bundle

	// The two storage stages are independent; run them concurrently but
	// require both to finish before anything is linked or leased.
	var codePut *blobstore.PutResult
	var sealed *keyring.EncryptResult

	g, gctx := errgroup.WithContext(ctx)

	if len(b.CodeFiles) > 0 {
		g.Go(func() error {
			blob, err := bundle.EncodeFiles(b.CodeFiles)
			if err != nil {
				return fmt.Errorf("store code: %w", err)
			}
			put, err := s.store.Put(gctx, blob)
			if err != nil {
				return fmt.Errorf("store code: %w", err)
			}
			codePut = put
			return nil
		})
	}

	if len(b.SecretFiles) > 0 {
		g.Go(func() error {
			enc, err := s.sealer.EncryptAndStore(gctx, b.SecretFiles)
			if err != nil {
				return fmt.Errorf("seal secrets: %w", err)
			}
			sealed = enc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &UploadResult{
		Files:       res.Records,
		Ignored:     b.Ignored,
		Tree:        res.Tree,
		ProjectType: res.ProjectType,
	}
	if codePut != nil {
		out.CodeContentID = codePut.ContentID
		out.CodeSize = codePut.Size
	}

	// The lease is created only after every storage operation succeeded, so
	// an abandoned upload never leaves an active lease pointing at nothing.
	if sealed != nil {
		out.SecretContentID = sealed.ContentID
		out.DEKVersion = sealed.DEKVersion

		lease := &models.Lease{
			ID:         uuid.NewString(),
			Owner:      walletAddress,
			SecretCID:  sealed.ContentID,
			DEKVersion: sealed.DEKVersion,
			State:      models.LeaseStateActive,
			ExpiresAt:  time.Now().Add(s.config.LeaseValidity),
		}
		if _, err := s.repomanager.Leases(s.db).Create(ctx, lease); err != nil {
			return nil, fmt.Errorf("create lease: %w", err)
		}
		out.LeaseID = lease.ID
	}

	out.Indexed = s.linkWithRetry(ctx, walletAddress, out)

	s.logger.Info(ctx, "upload complete",
		"wallet", walletAddress,
		"code_cid", out.CodeContentID,
		"secret_cid", out.SecretContentID,
		"dek_version", out.DEKVersion,
		"indexed", out.Indexed,
	)

	return out, nil
}

// linkWithRetry records the ledger link once, retrying only the link step
// on transient failure. Storage and encryption are never reissued here;
// their side effects already happened.
func (s *UploadService) linkWithRetry(ctx context.Context, walletAddress string, out *UploadResult) bool {
	primaryCID := out.CodeContentID
	if primaryCID == "" {
		primaryCID = out.SecretContentID
	}
	if primaryCID == "" {
		return false
	}

	metadata := map[string]string{"project_type": out.ProjectType}
	if out.SecretContentID != "" {
		metadata["secret_cid"] = out.SecretContentID
		metadata["dek_version"] = strconv.FormatInt(out.DEKVersion, 10)
		metadata["lease_id"] = out.LeaseID
	}

	backoff := retry.WithMaxRetries(uint64(s.config.LinkMaxRetries), retry.NewExponential(s.config.LinkRetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.linker.Link(ctx, walletAddress, primaryCID, metadata)
		if err != nil && !errors.Is(err, common.ErrValidation) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "ledger link failed, upload kept", "wallet", walletAddress, "cid", primaryCID, "error", err.Error())
		return false
	}
	return true
}
