package tokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

var columns = []string{"token_id", "owner_id", "name", "claims", "issuer", "audience", "key_id",
	"issued_at", "expires_at", "status", "revoked_at", "revocation_reason", "version"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db, 3), mock, db
}

func addRow(rows *sqlmock.Rows, id, owner string, issued time.Time, status string, version int64) *sqlmock.Rows {
	return rows.AddRow(id, owner, "name-"+id, []byte(`{"sub":"`+owner+`","role":"user"}`), "tokenkeeper",
		[]byte(`["api"]`), "k1", issued, issued.Add(time.Hour), status, nil, "", version)
}

func TestPostgresCreate_Success(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	q := `(?s)^\s*INSERT\s+INTO\s+tokens\b.*VALUES\s*\(\$1,.*\$12,\s*1\)\s*$`
	rec := newRecord("a", "u1", baseTime)
	mock.ExpectExec(q).
		WithArgs("a", "u1", "name-a", []byte(`{"sub":"u1"}`), "", []byte(`[]`), "k1",
			baseTime, baseTime.Add(time.Hour), "active", nil, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), rec))
	assert.Equal(t, int64(1), rec.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate_Duplicate(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+tokens`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := repo.Create(context.Background(), newRecord("a", "u1", baseTime))
	assert.ErrorIs(t, err, common.ErrDuplicateTokenID)
}

func TestPostgresCreate_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+tokens`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), newRecord("a", "u1", baseTime))
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgresGet(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	q := `(?s)^\s*SELECT\s+token_id,.*FROM\s+tokens\s+WHERE\s+token_id\s*=\s*\$1\s*$`

	revokedAt := baseTime.Add(10 * time.Minute)
	rows := sqlmock.NewRows(columns).AddRow("a", "u1", "n", []byte(`{"sub":"u1"}`), "iss", []byte(`["x","y"]`), "k1",
		baseTime, baseTime.Add(time.Hour), "revoked", revokedAt, "lost", int64(4))
	mock.ExpectQuery(q).WithArgs("a").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, got.Status)
	assert.Equal(t, []string{"x", "y"}, got.Audience)
	assert.Equal(t, models.Claims{"sub": "u1"}, got.Claims)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, revokedAt.Equal(*got.RevokedAt))
	assert.Equal(t, "lost", got.RevocationReason)
	assert.Equal(t, int64(4), got.Version)

	mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(q).WithArgs("a").WillReturnError(errors.New("db err"))
	_, err = repo.Get(context.Background(), "a")
	assert.ErrorContains(t, err, "db error: db err")
}

func TestPostgresListByOwner(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	q := `(?s)WHERE\s+owner_id\s*=\s*\$1\s+ORDER\s+BY\s+issued_at\s+DESC,\s*token_id\s+ASC`

	rows := sqlmock.NewRows(columns)
	addRow(rows, "b", "u1", baseTime.Add(time.Minute), "active", 1)
	addRow(rows, "a", "u1", baseTime, "expired", 2)
	mock.ExpectQuery(q).WithArgs("u1").WillReturnRows(rows)

	list, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, models.StatusExpired, list[1].Status)
	assert.Equal(t, "user", list[0].Claims["role"])

	mock.ExpectQuery(q).WithArgs("u2").WillReturnRows(sqlmock.NewRows(columns))
	empty, err := repo.ListByOwner(context.Background(), "u2")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPostgresUpdate_CompareAndSwap(t *testing.T) {
	fastBackoff(t)
	repo, mock, _ := newRepoWithMock(t)
	sel := `(?s)SELECT\s+token_id,.*WHERE\s+token_id\s*=\s*\$1`
	upd := `(?s)^\s*UPDATE\s+tokens\s+SET\s+name\s*=\s*\$1,.*WHERE\s+token_id\s*=\s*\$12\s+AND\s+version\s*=\s*\$13\s*$`

	// first attempt loses the race, second lands
	mock.ExpectQuery(sel).WithArgs("a").WillReturnRows(addRow(sqlmock.NewRows(columns), "a", "u1", baseTime, "active", 1))
	mock.ExpectExec(upd).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), "revoked", sqlmock.AnyArg(), "done", int64(2), "a", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel).WithArgs("a").WillReturnRows(addRow(sqlmock.NewRows(columns), "a", "u1", baseTime, "active", 2))
	mock.ExpectExec(upd).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), "revoked", sqlmock.AnyArg(), "done", int64(3), "a", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Update(context.Background(), "a", func(tok *models.Token) error {
		now := baseTime
		tok.Status = models.StatusRevoked
		tok.RevokedAt = &now
		tok.RevocationReason = "done"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdate_ConflictExhausted(t *testing.T) {
	fastBackoff(t)
	repo, mock, _ := newRepoWithMock(t)

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(`SELECT\s+token_id`).WithArgs("a").
			WillReturnRows(addRow(sqlmock.NewRows(columns), "a", "u1", baseTime, "active", 1))
		mock.ExpectExec(`UPDATE\s+tokens`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	_, err := repo.Update(context.Background(), "a", func(*models.Token) error { return nil })
	require.ErrorIs(t, err, common.ErrConcurrencyConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkExpired(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	q := `(?s)UPDATE\s+tokens\s+SET\s+status\s*=\s*'expired'.*WHERE\s+status\s*=\s*'active'\s+AND\s+expires_at\s*<=\s*\$1\s+RETURNING`

	mock.ExpectBegin()
	mock.ExpectQuery(q).WithArgs(baseTime).
		WillReturnRows(addRow(sqlmock.NewRows(columns), "a", "u1", baseTime.Add(-2*time.Hour), "expired", 2))
	mock.ExpectCommit()

	out, err := repo.MarkExpired(context.Background(), baseTime)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.StatusExpired, out[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkExpired_RollsBackOnError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE\s+tokens`).WillReturnError(errors.New("db err"))
	mock.ExpectRollback()

	_, err := repo.MarkExpired(context.Background(), baseTime)
	assert.ErrorContains(t, err, "db err")
	require.NoError(t, mock.ExpectationsWereMet())
}
