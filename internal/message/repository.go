package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

// Append inserts the message only if the target exists and accepts messages,
// in one statement. The zero-row case is classified with a follow-up read;
// the read only picks the error, the append itself cannot race the flag.
func (r *Repository) Append(ctx context.Context, username, content string) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, content)
		 SELECT u.id, ? FROM users AS u
		 WHERE u.username = ? AND u.accepting_messages`,
		content, username,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var accepting bool
	err = r.db.NewSelect().
		Model((*database.User)(nil)).
		Column("accepting_messages").
		Where("username = ?", username).
		Scan(ctx, &accepting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to resolve append failure: %w", err)
	}
	return ErrNotAccepting
}

// ListByUser returns the user's messages newest first
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Message, error) {
	var dbMessages []database.Message
	err := r.db.NewSelect().
		Model(&dbMessages).
		Where("user_id = ?", userID).
		Order("received_at DESC", "seq DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]Message, 0, len(dbMessages))
	for i := range dbMessages {
		messages = append(messages, mapDBMessageToModel(&dbMessages[i]))
	}
	return messages, nil
}

// Delete removes the message only when it belongs to userID
func (r *Repository) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	result, err := r.db.NewDelete().
		Model((*database.Message)(nil)).
		Where("id = ?", messageID).
		Where("user_id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// mapDBMessageToModel converts database model to domain model
func mapDBMessageToModel(dbm *database.Message) Message {
	return Message{
		ID:         dbm.ID,
		UserID:     dbm.UserID,
		Content:    dbm.Content,
		ReceivedAt: dbm.ReceivedAt,
	}
}
