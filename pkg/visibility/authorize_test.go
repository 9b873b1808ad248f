package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhost/quarry/pkg/models"
)

// ownedThing is a minimal Authorizable: creator or moderator only.
type ownedThing struct {
	createdBy int64
}

func (o *ownedThing) ValidateAuthorized(actor *models.User) error {
	if actor == nil {
		return nil
	}
	if actor.Role.IsMod() || actor.ID == o.createdBy {
		return nil
	}
	return NewAuthorizationError("you don't have sufficient permissions to interact with this resource")
}

func TestValidateAllAuthorized(t *testing.T) {
	mine := &ownedThing{createdBy: 7}
	theirs := &ownedThing{createdBy: 8}

	t.Run("anonymous is always authorized", func(t *testing.T) {
		assert.NoError(t, ValidateAllAuthorized([]*ownedThing{mine, theirs}, nil))
	})

	t.Run("creator passes own items", func(t *testing.T) {
		assert.NoError(t, ValidateAllAuthorized([]*ownedThing{mine}, &models.User{ID: 7}))
	})

	t.Run("moderator passes everything", func(t *testing.T) {
		mod := &models.User{ID: 99, Role: models.RoleModerator}
		assert.NoError(t, ValidateAllAuthorized([]*ownedThing{mine, theirs}, mod))
	})

	t.Run("fails fast on first denial", func(t *testing.T) {
		err := ValidateAllAuthorized([]*ownedThing{mine, theirs}, &models.User{ID: 7})
		require.Error(t, err)
		assert.True(t, IsAuthorizationError(err))
	})

	t.Run("empty batch is authorized", func(t *testing.T) {
		assert.NoError(t, ValidateAllAuthorized([]*ownedThing{}, &models.User{ID: 7}))
	})
}

func TestAuthorizationError(t *testing.T) {
	err := NewAuthorizationError("denied")
	assert.Equal(t, "denied", err.Error())
	assert.True(t, IsAuthorizationError(err))
	assert.False(t, IsAuthorizationError(assert.AnError))
}
