package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/murmurapp/murmur/internal/database"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *bun.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user into the database
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	dbUser := &database.User{
		Username:            u.Username,
		Email:               u.Email,
		PasswordHash:        u.PasswordHash,
		VerifyCode:          u.VerifyCode,
		VerifyCodeExpiresAt: u.VerifyCodeExpiresAt,
		Verified:            false,
		AcceptingMessages:   true,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if dupErr := classifyDuplicate(err); dupErr != nil {
			return nil, dupErr
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByUsername retrieves a user by username
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("username = ?", username).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// VerifiedUsernameExists reports whether a verified user owns the username
func (r *Repository) VerifiedUsernameExists(ctx context.Context, username string) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*database.User)(nil)).
		Where("username = ?", username).
		Where("verified = ?", true).
		Count(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to check verified username: %w", err)
	}

	return count > 0, nil
}

// ReviveUnverified re-issues credentials for an unverified account in a
// single conditional update so a concurrent verification cannot be clobbered.
func (r *Repository) ReviveUnverified(ctx context.Context, email, passwordHash, code string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("verify_code = ?", code).
		Set("verify_code_expires_at = ?", expiresAt).
		Set("updated_at = NOW()").
		Where("email = ?", email).
		Where("verified = ?", false).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to revive unverified user: %w", err)
	}

	return requireRowsAffected(result)
}

// MarkVerified flips verified only while the code still matches and has not
// expired. A zero-row update means the precondition no longer holds.
func (r *Repository) MarkVerified(ctx context.Context, username, code string, now time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("verified = ?", true).
		Set("updated_at = NOW()").
		Where("username = ?", username).
		Where("verify_code = ?", code).
		Where("verify_code_expires_at >= ?", now).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	return requireRowsAffected(result)
}

// ForceVerify marks the user verified without checking the code
func (r *Repository) ForceVerify(ctx context.Context, username string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("verified = ?", true).
		Set("updated_at = NOW()").
		Where("username = ?", username).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to force-verify user: %w", err)
	}

	return requireRowsAffected(result)
}

// SetAcceptingMessages updates the accept-messages flag
func (r *Repository) SetAcceptingMessages(ctx context.Context, id uuid.UUID, accepting bool) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("accepting_messages = ?", accepting).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update accepting_messages: %w", err)
	}

	return requireRowsAffected(result)
}

// classifyDuplicate maps unique-constraint violations to sentinel errors.
// The constraint names come from the initial migration.
func classifyDuplicate(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value violates unique constraint") {
		return nil
	}
	if strings.Contains(msg, "users_email_key") {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}

func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:                  dbu.ID,
		Username:            dbu.Username,
		Email:               dbu.Email,
		PasswordHash:        dbu.PasswordHash,
		VerifyCode:          dbu.VerifyCode,
		VerifyCodeExpiresAt: dbu.VerifyCodeExpiresAt,
		Verified:            dbu.Verified,
		AcceptingMessages:   dbu.AcceptingMessages,
		CreatedAt:           dbu.CreatedAt,
		UpdatedAt:           dbu.UpdatedAt,
	}
}
