package leases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, lease *models.Lease) (*models.Lease, error) {

	query :=
		`INSERT INTO leases (id, owner, secret_cid, dek_version, state, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		lease.ID, lease.Owner, lease.SecretCID, lease.DEKVersion, lease.State, lease.ExpiresAt).Scan(&lease.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return lease, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Lease, error) {
	query :=
		`SELECT id, owner, secret_cid, dek_version, state, expires_at, created_at FROM leases
		 WHERE id = $1
		 `

	lease := &models.Lease{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&lease.ID, &lease.Owner, &lease.SecretCID, &lease.DEKVersion,
		&lease.State, &lease.ExpiresAt, &lease.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return lease, nil
}

// Consume is a compare-and-swap on the lease row: the WHERE clause only
// matches an active, unexpired lease, so under concurrency the database
// serializes callers and at most one update takes effect.
func (r *PostgresRepository) Consume(ctx context.Context, id string) error {

	query :=
		`UPDATE leases SET state = $1
		 WHERE id = $2 AND state = $3 AND expires_at > now()
		 RETURNING id
		 `

	var updated string
	err := r.db.QueryRowContext(ctx, query, models.LeaseStateConsumed, id, models.LeaseStateActive).Scan(&updated)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("db error: %w", err)
	}

	// Lost the race or the lease never qualified: report why.
	lease, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case lease.State == models.LeaseStateConsumed:
		return common.ErrAlreadyConsumed
	case lease.State == models.LeaseStateExpired || !lease.ExpiresAt.After(time.Now()):
		return common.ErrExpired
	default:
		return fmt.Errorf("db error: lease %s not consumable in state %s", id, lease.State)
	}
}

func (r *PostgresRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {

	query :=
		`UPDATE leases SET state = $1
		 WHERE state = $2 AND expires_at <= $3
		 `

	res, err := r.db.ExecContext(ctx, query, models.LeaseStateExpired, models.LeaseStateActive, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
