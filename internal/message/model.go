package message

import (
	"time"

	"github.com/google/uuid"
)

// Message is one anonymous note in a user's inbox. Sender identity is never
// recorded anywhere.
type Message struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"-"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
}
