package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
)

// Store is the persistence capability injected into services. The production
// implementation is Repository (Postgres via bun); tests substitute MemoryStore.
//
// Conditional writes (ReviveUnverified, MarkVerified, SetAcceptingMessages)
// are single atomic statements, not read-then-write sequences, so concurrent
// requests for the same user cannot interleave.
type Store interface {
	// Create inserts a new user. Uniqueness violations surface as
	// ErrDuplicateUsername or ErrDuplicateEmail.
	Create(ctx context.Context, u *User) (*User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// VerifiedUsernameExists reports whether a verified user owns username.
	VerifiedUsernameExists(ctx context.Context, username string) (bool, error)

	// ReviveUnverified overwrites the password hash and verification code of
	// an unverified user identified by email. ErrNotFound if no unverified
	// user has that email.
	ReviveUnverified(ctx context.Context, email, passwordHash, code string, expiresAt time.Time) error

	// MarkVerified flips verified to true only while the stored code matches
	// and has not expired at now. ErrNotFound if no row matched.
	MarkVerified(ctx context.Context, username, code string, now time.Time) error

	// ForceVerify flips verified to true without a code check.
	// ErrNotFound if the username does not exist.
	ForceVerify(ctx context.Context, username string) error

	SetAcceptingMessages(ctx context.Context, id uuid.UUID, accepting bool) error
}
