package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/logging"
	"github.com/buildvault/buildvault/internal/server/models"
	"github.com/buildvault/buildvault/internal/server/repositories/repomanager"
)

// replayGuardSlack keeps consumed-set entries around a little past ticket
// expiry so clock skew between workers cannot reopen a jti.
const replayGuardSlack = time.Minute

// Authority issues and redeems build tickets. All methods are safe for
// concurrent use; lease transitions serialize on the lease row and jti
// consumption on the replay guard.
type Authority struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	guard       ReplayGuard
	logger      logging.Logger

	signingKey     []byte
	prevSigningKey []byte
	validity       time.Duration
}

func NewAuthority(db *sql.DB, m repomanager.RepositoryManager, guard ReplayGuard, logger logging.Logger,
	signingKey, prevSigningKey []byte, validity time.Duration) *Authority {
	return &Authority{
		db:             db,
		repomanager:    m,
		guard:          guard,
		logger:         logger.With("module", "ticket_authority"),
		signingKey:     signingKey,
		prevSigningKey: prevSigningKey,
		validity:       validity,
	}
}

// IssueTicket validates a decrypt request against the lease and mints a
// signed single-use ticket for the designated node.
//
// A missing lease and a lease owned by someone else both come back as
// ErrUnauthorized, so non-owners cannot probe for lease existence.
func (a *Authority) IssueTicket(ctx context.Context, leaseID, cidEnv, nodeID, requester string) (*Ticket, error) {
	if leaseID == "" || cidEnv == "" || nodeID == "" || requester == "" {
		return nil, fmt.Errorf("%w: missing issuance parameters", common.ErrValidation)
	}

	lease, err := a.repomanager.Leases(a.db).Get(ctx, leaseID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	if lease.Owner != requester {
		a.logger.Warn(ctx, "ticket requested by non-owner", "lease_id", leaseID, "requester", requester)
		return nil, common.ErrUnauthorized
	}

	switch lease.State {
	case models.LeaseStateActive:
		// fall through to the time bound check
	case models.LeaseStateConsumed:
		return nil, common.ErrAlreadyConsumed
	default:
		return nil, common.ErrExpired
	}

	now := time.Now()
	if !lease.ExpiresAt.After(now) {
		return nil, common.ErrExpired
	}

	if cidEnv != lease.SecretCID {
		a.logger.Warn(ctx, "ticket requested for foreign content id", "lease_id", leaseID, "cid", cidEnv)
		return nil, common.ErrUnauthorized
	}

	// The ticket window is materially shorter than the lease lifetime and
	// never extends past the lease's own bound.
	exp := now.Add(a.validity)
	if exp.After(lease.ExpiresAt) {
		exp = lease.ExpiresAt
	}

	jti := uuid.NewString()

	signed, err := SignTicket(jti, leaseID, cidEnv, nodeID, exp, a.signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing ticket: %w", err)
	}

	if err := a.guard.Issue(ctx, jti, time.Until(exp)+replayGuardSlack); err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "ticket issued", "lease_id", leaseID, "jti", jti, "node_id", nodeID, "exp", exp)

	return &Ticket{JTI: jti, LeaseID: leaseID, CIDEnv: cidEnv, NodeID: nodeID, Exp: exp, Signed: signed}, nil
}

// RedeemTicket validates a presented ticket and, if every rule passes,
// atomically burns the jti and consumes the lease. Exactly one concurrent
// redemption of the same jti succeeds; the rest fail with ErrReplayDetected
// and the replay is logged as a security event. No partial access is ever
// granted: a failure at any step leaves nothing unlocked.
func (a *Authority) RedeemTicket(ctx context.Context, signedToken, presenterNodeID string) (*Ticket, error) {
	t, err := ParseTicket(signedToken, a.signingKey, a.prevSigningKey)
	if err != nil {
		return nil, err
	}

	if !t.Exp.After(time.Now()) {
		return nil, fmt.Errorf("%w: ticket expired", common.ErrExpired)
	}

	if t.NodeID != presenterNodeID {
		a.logger.Warn(ctx, "ticket presented by wrong node", "jti", t.JTI, "ticket_node", t.NodeID, "presenter", presenterNodeID)
		return nil, common.ErrNodeMismatch
	}

	// Single-use enforcement: the consumed-set is the linearization point.
	// The jti is burnt before the lease transition, so a lease-store failure
	// here leaves the ticket unredeemable. Fail closed: nothing was granted,
	// and the owner can request a fresh ticket while the lease stays active.
	first, err := a.guard.Consume(ctx, t.JTI, time.Until(t.Exp)+replayGuardSlack)
	if err != nil {
		return nil, err
	}
	if !first {
		a.logger.Error(ctx, "ticket replay detected", "jti", t.JTI, "lease_id", t.LeaseID, "presenter", presenterNodeID)
		return nil, common.ErrReplayDetected
	}

	if err := a.repomanager.Leases(a.db).Consume(ctx, t.LeaseID); err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "ticket redeemed", "jti", t.JTI, "lease_id", t.LeaseID, "node_id", presenterNodeID)

	return t, nil
}
