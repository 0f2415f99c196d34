package repomanager

import (
	"context"
	"database/sql"

	"github.com/buildvault/buildvault/internal/dbx"
	"github.com/buildvault/buildvault/internal/server/migrations"
	"github.com/buildvault/buildvault/internal/server/repositories/keys"
	"github.com/buildvault/buildvault/internal/server/repositories/leases"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct {
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Leases(db dbx.DBTX) leases.Repository {
	return leases.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Keys(db dbx.DBTX) keys.Repository {
	return keys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}
