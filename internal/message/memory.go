package message

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murmurapp/murmur/internal/user"
)

// MemoryStore is an in-memory Store used as a test substitute for Repository.
// It resolves usernames through the user store it is given, mirroring the
// messages-to-users join the SQL implementation does.
type MemoryStore struct {
	users user.Store

	mu       sync.Mutex
	nextSeq  int64
	messages []storedMessage
}

type storedMessage struct {
	Message
	seq int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(users user.Store) *MemoryStore {
	return &MemoryStore{users: users}
}

func (s *MemoryStore) Append(ctx context.Context, username, content string) error {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !u.AcceptingMessages {
		return ErrNotAccepting
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	s.messages = append(s.messages, storedMessage{
		Message: Message{
			ID:         uuid.New(),
			UserID:     u.ID,
			Content:    content,
			ReceivedAt: time.Now(),
		},
		seq: s.nextSeq,
	})
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []storedMessage
	for _, m := range s.messages {
		if m.UserID == userID {
			owned = append(owned, m)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].ReceivedAt.Equal(owned[j].ReceivedAt) {
			return owned[i].ReceivedAt.After(owned[j].ReceivedAt)
		}
		return owned[i].seq > owned[j].seq
	})

	if offset >= len(owned) {
		return []Message{}, nil
	}
	owned = owned[offset:]
	if limit > 0 && limit < len(owned) {
		owned = owned[:limit]
	}

	result := make([]Message, 0, len(owned))
	for _, m := range owned {
		result = append(result, m.Message)
	}
	return result, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.ID == messageID && m.UserID == userID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return ErrMessageNotFound
}
