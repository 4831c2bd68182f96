package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/murmurapp/murmur/internal/logging"
	"github.com/murmurapp/murmur/internal/user"
)

// Content bounds match the composer form.
const (
	MinContentLength = 10
	MaxContentLength = 300
)

var ErrContentLength = fmt.Errorf("message must be between %d and %d characters", MinContentLength, MaxContentLength)

// Service handles anonymous message ingestion and the owner's inbox.
type Service struct {
	store  Store
	users  user.Store
	logger *logging.Logger
}

func NewService(store Store, users user.Store, logger *logging.Logger) *Service {
	return &Service{
		store:  store,
		users:  users,
		logger: logger,
	}
}

// Send appends an anonymous message to username's inbox. The accept flag is
// evaluated inside the store's conditional append on every call - it is
// never cached between requests.
func (s *Service) Send(ctx context.Context, username, content string) error {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n < MinContentLength || n > MaxContentLength {
		return ErrContentLength
	}

	if err := s.store.Append(ctx, username, content); err != nil {
		return err
	}

	s.logger.Info("message appended", "username", username)
	return nil
}

// List returns the authenticated owner's messages newest first. Identity
// always comes from the session, never from client input, so one user's
// inbox is unreachable from another's session.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Message, error) {
	// The session may outlive the account; treat that as not found.
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	return s.store.ListByUser(ctx, userID, limit, offset)
}

// Delete removes one of the owner's messages.
func (s *Service) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	return s.store.Delete(ctx, userID, messageID)
}

// Accepting reports the owner's accept-messages flag.
func (s *Service) Accepting(ctx context.Context, userID uuid.UUID) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("failed to resolve user: %w", err)
	}
	return u.AcceptingMessages, nil
}

// SetAccepting flips the owner's accept-messages flag.
func (s *Service) SetAccepting(ctx context.Context, userID uuid.UUID, accepting bool) error {
	if err := s.users.SetAcceptingMessages(ctx, userID, accepting); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update accept flag: %w", err)
	}
	return nil
}
