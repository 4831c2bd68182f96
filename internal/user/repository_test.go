package user

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurapp/murmur/internal/database"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewRepository(database.NewBunDB(sqlDB)), mock
}

func userColumns() []string {
	return []string{
		"id", "username", "email", "password_hash",
		"verify_code", "verify_code_expires_at",
		"verified", "accepting_messages",
		"created_at", "updated_at",
	}
}

func userRow(id uuid.UUID, username string, verified bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns()).AddRow(
		id, username, username+"@example.com", "hash",
		"123456", now.Add(time.Hour),
		verified, true,
		now, now,
	)
}

func TestRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO "users"`).WillReturnRows(userRow(id, "alice", false))

	u, err := repo.Create(context.Background(), &User{
		Username:            "alice",
		Email:               "alice@example.com",
		PasswordHash:        "hash",
		VerifyCode:          "123456",
		VerifyCodeExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.False(t, u.Verified)
	assert.True(t, u.AcceptingMessages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		dbErr   string
		wantErr error
	}{
		{
			"username collision",
			`pq: duplicate key value violates unique constraint "users_username_key"`,
			ErrDuplicateUsername,
		},
		{
			"email collision",
			`pq: duplicate key value violates unique constraint "users_email_key"`,
			ErrDuplicateEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery(`INSERT INTO "users"`).WillReturnError(errors.New(tt.dbErr))

			_, err := repo.Create(context.Background(), &User{Username: "alice", Email: "alice@example.com"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRepositoryGetByUsername(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM "users"`).WillReturnRows(userRow(id, "alice", true))

	u, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.True(t, u.Verified)
}

func TestRepositoryGetByUsernameNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .* FROM "users"`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryVerifiedUsernameExists(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT count`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	exists, err := repo.VerifiedUsernameExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(`SELECT count`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	exists, err = repo.VerifiedUsernameExists(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepositoryReviveUnverified(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.ReviveUnverified(context.Background(), "alice@example.com", "newhash", "654321", time.Now().Add(time.Hour))
	assert.NoError(t, err)

	// No unverified row under that email.
	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.ReviveUnverified(context.Background(), "alice@example.com", "newhash", "654321", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryMarkVerified(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.MarkVerified(context.Background(), "alice", "123456", now))

	// Code changed or expired between read and write.
	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkVerified(context.Background(), "alice", "123456", now), ErrNotFound)
}

func TestRepositorySetAcceptingMessages(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SetAcceptingMessages(context.Background(), uuid.New(), false))

	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetAcceptingMessages(context.Background(), uuid.New(), false), ErrNotFound)
}
