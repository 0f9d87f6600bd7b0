package user

import (
	"context"
	"errors"
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	PasswordHash []byte
	GoogleID     string
	CreatedAt    time.Time
}

func (u *User) HasPassword() bool { return len(u.PasswordHash) > 0 }

var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user already exists")
var ErrUnavailable = errors.New("user store unavailable")

// Repository stores users. Email, phone and googleID are unique when set.
type Repository interface {
	// Create assigns u.ID. Returns ErrUserExists on a uniqueness violation.
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByIdentifier matches the value against email, then phone.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	LinkGoogleID(ctx context.Context, id, googleID string) error
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}
