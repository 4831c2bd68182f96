package message

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrNotAccepting    = errors.New("user is not accepting messages")
	ErrMessageNotFound = errors.New("message not found")
)

// Store is the message persistence capability. Append is a single atomic
// statement conditioned on the target's accept flag, so a toggle and a send
// racing each other cannot produce a message the owner opted out of.
type Store interface {
	// Append adds a message to username's inbox. ErrUserNotFound if the
	// username does not resolve, ErrNotAccepting if the target opted out.
	Append(ctx context.Context, username, content string) error

	// ListByUser returns userID's messages newest first (received_at, then
	// insertion order).
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Message, error)

	// Delete removes one of userID's own messages. ErrMessageNotFound if the
	// message does not exist or belongs to someone else.
	Delete(ctx context.Context, userID, messageID uuid.UUID) error
}
