package leases

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	qInsert  = `(?s)^INSERT\s+INTO\s+leases\s*\(id,\s*owner,\s*secret_cid,\s*dek_version,\s*state,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*RETURNING\s+created_at\s*$`
	qSelect  = `(?s)^SELECT\s+id,\s*owner,\s*secret_cid,\s*dek_version,\s*state,\s*expires_at,\s*created_at\s+FROM\s+leases\s+WHERE\s+id\s*=\s*\$1\s*$`
	qConsume = `(?s)^UPDATE\s+leases\s+SET\s+state\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+state\s*=\s*\$3\s+AND\s+expires_at\s*>\s*now\(\)\s*RETURNING\s+id\s*$`
	qExpire  = `(?s)^UPDATE\s+leases\s+SET\s+state\s*=\s*\$1\s+WHERE\s+state\s*=\s*\$2\s+AND\s+expires_at\s*<=\s*\$3\s*$`
)

func leaseRow(id, owner, state string, expires time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner", "secret_cid", "dek_version", "state", "expires_at", "created_at"}).
		AddRow(id, owner, "sha256:abc", int64(1), state, expires, time.Now())
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(30 * time.Minute)
	mock.ExpectQuery(qInsert).
		WithArgs("L1", "0xwallet", "sha256:abc", int64(1), models.LeaseStateActive, expires).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	lease := &models.Lease{
		ID: "L1", Owner: "0xwallet", SecretCID: "sha256:abc",
		DEKVersion: 1, State: models.LeaseStateActive, ExpiresAt: expires,
	}
	got, err := repo.Create(context.Background(), lease)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be populated")
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qInsert).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Lease{ID: "L1", State: models.LeaseStateActive})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qSelect).
		WithArgs("L1").
		WillReturnRows(leaseRow("L1", "0xwallet", models.LeaseStateActive, time.Now().Add(time.Hour)))

	got, err := repo.Get(context.Background(), "L1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != "L1" || got.Owner != "0xwallet" || got.State != models.LeaseStateActive {
		t.Fatalf("unexpected lease: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qSelect).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestConsume_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qConsume).
		WithArgs(models.LeaseStateConsumed, "L1", models.LeaseStateActive).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("L1"))

	if err := repo.Consume(context.Background(), "L1"); err != nil {
		t.Fatalf("Consume error: %v", err)
	}
}

func TestConsume_AlreadyConsumed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qConsume).
		WithArgs(models.LeaseStateConsumed, "L1", models.LeaseStateActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(qSelect).
		WithArgs("L1").
		WillReturnRows(leaseRow("L1", "0xwallet", models.LeaseStateConsumed, time.Now().Add(time.Hour)))

	err := repo.Consume(context.Background(), "L1")
	if !errors.Is(err, common.ErrAlreadyConsumed) {
		t.Fatalf("want common.ErrAlreadyConsumed, got %v", err)
	}
}

func TestConsume_Expired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qConsume).
		WithArgs(models.LeaseStateConsumed, "L1", models.LeaseStateActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(qSelect).
		WithArgs("L1").
		WillReturnRows(leaseRow("L1", "0xwallet", models.LeaseStateActive, time.Now().Add(-time.Minute)))

	err := repo.Consume(context.Background(), "L1")
	if !errors.Is(err, common.ErrExpired) {
		t.Fatalf("want common.ErrExpired, got %v", err)
	}
}

func TestConsume_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qConsume).
		WithArgs(models.LeaseStateConsumed, "ghost", models.LeaseStateActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(qSelect).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	err := repo.Consume(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestExpireDue_CountsTransitions(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(qExpire).
		WithArgs(models.LeaseStateExpired, models.LeaseStateActive, now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpireDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireDue error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 expired leases, got %d", n)
	}
}
