// Package repomanager wires concrete repositories behind one construct so
// services can ask for a repo bound to either the pool or a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/buildvault/buildvault/internal/dbx"
	"github.com/buildvault/buildvault/internal/server/repositories/keys"
	"github.com/buildvault/buildvault/internal/server/repositories/leases"
)

type RepositoryManager interface {
	Leases(db dbx.DBTX) leases.Repository
	Keys(db dbx.DBTX) keys.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
