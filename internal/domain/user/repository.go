package user

import (
	"context"
)

// Repository defines storage operations for users.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// Create creates a new user.
	// Returns ErrUserAlreadyExists if the username is taken.
	Create(ctx context.Context, u *User) error

	// GetByID returns a user by internal ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername returns a user by username.
	// Returns ErrUserNotFound if the user does not exist.
	GetByUsername(ctx context.Context, username Username) (*User, error)

	// GetByIDs returns users for the given IDs. Every ID must resolve;
	// a single unknown ID yields ErrUserNotFound.
	GetByIDs(ctx context.Context, ids []string) ([]*User, error)

	// Update updates a user's mutable fields.
	// Returns ErrUserNotFound if the user does not exist.
	Update(ctx context.Context, u *User) error
}
