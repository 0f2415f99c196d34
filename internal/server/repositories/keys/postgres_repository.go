package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/dbx"
	"github.com/buildvault/buildvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ActiveVersion(ctx context.Context) (int64, error) {
	query :=
		`SELECT version FROM key_versions
		 WHERE active
		 `

	var version int64
	err := r.db.QueryRowContext(ctx, query).Scan(&version)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return version, nil
}

func (r *PostgresRepository) GetVersion(ctx context.Context, version int64) (*models.KeyVersion, error) {
	query :=
		`SELECT version, active, created_at FROM key_versions
		 WHERE version = $1
		 `

	kv := &models.KeyVersion{}
	err := r.db.QueryRowContext(ctx, query, version).Scan(&kv.Version, &kv.Active, &kv.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return kv, nil
}

func (r *PostgresRepository) Rotate(ctx context.Context) (int64, error) {

	retire :=
		`UPDATE key_versions SET active = false
		 WHERE active
		 `

	if _, err := r.db.ExecContext(ctx, retire); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	appendNext :=
		`INSERT INTO key_versions (version, active)
		 SELECT COALESCE(MAX(version), 0) + 1, true FROM key_versions
		 RETURNING version
		 `

	var version int64
	if err := r.db.QueryRowContext(ctx, appendNext).Scan(&version); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return version, nil
}
