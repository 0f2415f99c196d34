package keys

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/buildvault/buildvault/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestActiveVersion_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+version\s+FROM\s+key_versions\s+WHERE\s+active\s*$`

	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))

	got, err := repo.ActiveVersion(context.Background())
	if err != nil {
		t.Fatalf("ActiveVersion error: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected version 3, got %d", got)
	}
}

func TestActiveVersion_NoActiveRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+version\s+FROM\s+key_versions\s+WHERE\s+active\s*$`

	mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

	_, err := repo.ActiveVersion(context.Background())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestGetVersion_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+version,\s*active,\s*created_at\s+FROM\s+key_versions\s+WHERE\s+version\s*=\s*\$1\s*$`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "active", "created_at"}).AddRow(int64(2), false, now))

	kv, err := repo.GetVersion(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetVersion error: %v", err)
	}
	if kv.Version != 2 || kv.Active {
		t.Fatalf("unexpected key version: %+v", kv)
	}
}

func TestGetVersion_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+version,\s*active,\s*created_at\s+FROM\s+key_versions\s+WHERE\s+version\s*=\s*\$1\s*$`

	mock.ExpectQuery(q).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetVersion(context.Background(), 9)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestRotate_AppendsAndRepoints(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	retire := `(?s)^UPDATE\s+key_versions\s+SET\s+active\s*=\s*false\s+WHERE\s+active\s*$`
	insert := `(?s)^INSERT\s+INTO\s+key_versions\s*\(version,\s*active\)\s*SELECT\s+COALESCE\(MAX\(version\),\s*0\)\s*\+\s*1,\s*true\s+FROM\s+key_versions\s+RETURNING\s+version\s*$`

	mock.ExpectExec(retire).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(4)))

	got, err := repo.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if got != 4 {
		t.Fatalf("expected version 4, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	retire := `(?s)^UPDATE\s+key_versions\s+SET\s+active\s*=\s*false\s+WHERE\s+active\s*$`

	mock.ExpectExec(retire).WillReturnError(errors.New("db down"))

	_, err := repo.Rotate(context.Background())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
