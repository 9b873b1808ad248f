package visibility

import "github.com/quarryhost/quarry/pkg/models"

// AuthorizationError is an explicit denial from a direct-object
// authorization check. Unlike batch filtering, which silently excludes,
// this surfaces a reason: the caller already knows the object exists.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// NewAuthorizationError creates an AuthorizationError with the given
// user-facing message.
func NewAuthorizationError(message string) *AuthorizationError {
	return &AuthorizationError{Message: message}
}

// IsAuthorizationError reports whether err is an authorization denial.
func IsAuthorizationError(err error) bool {
	_, ok := err.(*AuthorizationError)
	return ok
}

// Authorizable is the uniform "may this actor act on this entity"
// contract. Entity types implement the single-entity check and get the
// batch form through ValidateAllAuthorized.
type Authorizable interface {
	ValidateAuthorized(actor *models.User) error
}

// ValidateAllAuthorized checks every item, failing fast on the first
// denial. The combinator is generic so the iteration logic exists once,
// not per entity type.
func ValidateAllAuthorized[T Authorizable](items []T, actor *models.User) error {
	for _, item := range items {
		if err := item.ValidateAuthorized(actor); err != nil {
			return err
		}
	}
	return nil
}
