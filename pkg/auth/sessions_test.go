package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhost/quarry/pkg/models"
)

func newMockSessions(t *testing.T) (*SessionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSessionStore(db), mock
}

func TestCreateSession(t *testing.T) {
	store, mock := newMockSessions(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "expires_at"}).
			AddRow(int64(5), now, now.Add(14*24*time.Hour)))

	token, session, err := store.CreateSession(context.Background(), 3, 14*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Equal(t, int64(3), session.UserID)
	assert.True(t, strings.HasPrefix(session.TokenPrefix, TokenPrefix))
	assert.NotContains(t, session.TokenPrefix, strings.TrimPrefix(token, TokenPrefix)[8:],
		"stored prefix must not carry the whole token")
}

func TestResolveToken(t *testing.T) {
	t.Run("resolves to user", func(t *testing.T) {
		store, mock := newMockSessions(t)
		tg := NewTokenGenerator()
		token, hash, _, err := tg.GenerateToken()
		require.NoError(t, err)

		mock.ExpectQuery(`FROM sessions s\s+INNER JOIN users u`).
			WithArgs(hash).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "username", "email", "avatar_url", "bio", "role", "badges", "created_at", "last_login",
			}).AddRow(int64(3), "alex", "alex@example.com", "", "", "developer", int64(0), time.Now(), nil))

		user, err := store.ResolveToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, int64(3), user.ID)
		assert.Equal(t, models.RoleDeveloper, user.Role)
	})

	t.Run("expired or unknown token", func(t *testing.T) {
		store, mock := newMockSessions(t)
		token, hash, _, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)

		mock.ExpectQuery(`FROM sessions s`).
			WithArgs(hash).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err = store.ResolveToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("malformed token never reaches the database", func(t *testing.T) {
		store, mock := newMockSessions(t)

		_, err := store.ResolveToken(context.Background(), "not-a-quarry-token")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expiry is enforced in the query", func(t *testing.T) {
		store, mock := newMockSessions(t)
		token, _, _, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)

		// Pinned so a refactor that trusts application-side expiry
		// fails the suite.
		mock.ExpectQuery(`AND s\.expires_at > NOW\(\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err = store.ResolveToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRevokeToken(t *testing.T) {
	t.Run("revokes", func(t *testing.T) {
		store, mock := newMockSessions(t)
		token, hash, _, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)

		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
			WithArgs(hash).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.RevokeToken(context.Background(), token))
	})

	t.Run("unknown session", func(t *testing.T) {
		store, mock := newMockSessions(t)
		token, _, _, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)

		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = store.RevokeToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestDeleteExpired(t *testing.T) {
	store, mock := newMockSessions(t)

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <= NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := store.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
}
