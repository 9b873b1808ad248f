package users

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhost/quarry/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func userCols() []string {
	return []string{"id", "username", "email", "avatar_url", "bio", "role", "badges", "created_at", "last_login"}
}

func userRow(id int64, username string, role models.Role) []driver.Value {
	return []driver.Value{id, username, username + "@example.com", "", "", string(role), int64(0), time.Now(), nil}
}

func TestGetUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows(userCols()).AddRow(userRow(3, "alex", models.RoleDeveloper)...))

		user, err := store.GetUser(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, "alex", user.Username)
		assert.Equal(t, models.RoleDeveloper, user.Role)
		assert.Nil(t, user.LastLogin)
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs(int64(404)).
			WillReturnRows(sqlmock.NewRows(userCols()))

		_, err := store.GetUser(context.Background(), 404)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestGetUsers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM users WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(userCols()).
			AddRow(userRow(3, "alex", models.RoleDeveloper)...).
			AddRow(userRow(99, "mod", models.RoleModerator)...))

	users, err := store.GetUsers(context.Background(), []int64{3, 99, 404})
	require.NoError(t, err)
	require.Len(t, users, 2)
}

func TestUpsertOIDCUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO users \(oidc_subject`).
		WithArgs("issuer|abc123", "alex", "alex@example.com", "").
		WillReturnRows(sqlmock.NewRows(userCols()).AddRow(userRow(3, "alex", models.RoleDeveloper)...))

	user, err := store.UpsertOIDCUser(context.Background(), "issuer|abc123", "alex", "alex@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.ID)
}

func TestUpdateRole(t *testing.T) {
	t.Run("updates", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(`UPDATE users SET role = \$2 WHERE id = \$1`).
			WithArgs(int64(3), "moderator").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateRole(context.Background(), 3, models.RoleModerator))
	})

	t.Run("missing user", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(`UPDATE users SET role = \$2 WHERE id = \$1`).
			WithArgs(int64(404), "moderator").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateRole(context.Background(), 404, models.RoleModerator)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUpdateBadges(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE users SET badges = \$2 WHERE id = \$1`).
		WithArgs(int64(3), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateBadges(context.Background(), 3, 5))
}
