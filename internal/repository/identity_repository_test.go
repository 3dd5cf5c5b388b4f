package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

var identityRowColumns = []string{"id", "email", "password_hash", "name", "role", "institution_ref", "active", "profile", "created_at", "updated_at"}

var sessionRowColumns = []string{"id", "user_id", "refresh_token_hash", "ip_address", "user_agent", "browser", "os", "device_class", "created_at", "last_used"}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(identityRowColumns).
		AddRow("1", "user@example.com", "hash", "User", string(models.RoleStudent), nil, true, []byte(`{"enrollment_no":"E1"}`), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + identityColumns + " FROM identities WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	identity, err := repo.FindByEmail(context.Background(), "User@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.Equal(t, models.RoleStudent, identity.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailWithNullProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(identityRowColumns).
		AddRow("1", "root@example.com", "hash", "Root", string(models.RoleSuperAdmin), nil, true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE email = $1")).
		WithArgs("root@example.com").
		WillReturnRows(rows)

	identity, err := repo.FindByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, identity.Role)
	assert.Nil(t, identity.Public().Profile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIdentityStoresNullProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	profile, err := models.EncodeProfile(nil)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO identities").
		WithArgs(sqlmock.AnyArg(), "admin@example.com", "hash", "Admin", models.RoleAdmin, nil, true, []byte("null"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Create(context.Background(), &models.Identity{
		Email:        "admin@example.com",
		PasswordHash: "hash",
		Name:         "Admin",
		Role:         models.RoleAdmin,
		Active:       true,
		ProfileData:  profile,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordMissingIdentity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET password_hash = $2")).
		WithArgs("ghost", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), "ghost", "hash", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIdentityDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec("INSERT INTO identities").WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.Create(context.Background(), &models.Identity{Email: "dup@example.com", Role: models.RoleStudent})
	assert.ErrorIs(t, err, models.ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIdentities(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows(identityRowColumns).
		AddRow("1", "a@example.com", "hash", "A", string(models.RoleAdmin), nil, true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + identityColumns + " FROM identities WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM identities WHERE 1=1")).WillReturnRows(countRows)

	identities, total, err := repo.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, identities, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetActiveMissingIdentity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET active = $2")).
		WithArgs("ghost", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "ghost", false, time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAndFindSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	now := time.Now()
	mock.ExpectExec("INSERT INTO identity_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.AppendSession(context.Background(), &models.Session{ID: "s1", UserID: "u1", RefreshTokenHash: "h", CreatedAt: now, LastUsed: now}))

	rows := sqlmock.NewRows(sessionRowColumns).AddRow("s1", "u1", "h", "10.0.0.1", "ua", "Chrome", "Linux", "desktop", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM identity_sessions WHERE user_id = $1 AND id = $2")).
		WithArgs("u1", "s1").
		WillReturnRows(rows)

	session, err := repo.FindSession(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", session.IP)
	assert.Equal(t, "h", session.RefreshTokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSessionConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)
	next := &models.Session{ID: "s2", RefreshTokenHash: "h2", LastUsed: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE identity_sessions")).
		WithArgs("u1", "s1", "h1", "s2", "h2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.ReplaceSession(context.Background(), "u1", "s1", "h1", next)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE identity_sessions")).
		WithArgs("u1", "s1", "h1", "s2", "h2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.ReplaceSession(context.Background(), "u1", "s1", "h1", next)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneSessionsKeepsCurrent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	cutoff := time.Now().Add(-models.DefaultSessionRetention)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM identity_sessions WHERE user_id = $1 AND last_used < $2 AND id <> $3")).
		WithArgs("u1", sqlmock.AnyArg(), "current").
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := repo.PruneSessions(context.Background(), "u1", cutoff, "current")
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM identity_sessions WHERE user_id = $1 AND id = $2")).
		WithArgs("u1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.RemoveSession(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
