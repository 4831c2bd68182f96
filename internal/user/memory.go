package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used as a test substitute for Repository.
type MemoryStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[uuid.UUID]*User)}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return nil, ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, ErrDuplicateEmail
		}
	}

	now := time.Now()
	stored := *u
	stored.ID = uuid.New()
	stored.Verified = false
	stored.AcceptingMessages = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.users[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.findByUsername(username); u != nil {
		result := *u
		return &result, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) VerifiedUsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findByUsername(username)
	return u != nil && u.Verified, nil
}

func (s *MemoryStore) ReviveUnverified(ctx context.Context, email, passwordHash, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email && !u.Verified {
			u.PasswordHash = passwordHash
			u.VerifyCode = code
			u.VerifyCodeExpiresAt = expiresAt
			u.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkVerified(ctx context.Context, username, code string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findByUsername(username)
	if u == nil || u.VerifyCode != code || now.After(u.VerifyCodeExpiresAt) {
		return ErrNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ForceVerify(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findByUsername(username)
	if u == nil {
		return ErrNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetAcceptingMessages(ctx context.Context, id uuid.UUID, accepting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.AcceptingMessages = accepting
	u.UpdatedAt = time.Now()
	return nil
}

// findByUsername must be called with the lock held.
func (s *MemoryStore) findByUsername(username string) *User {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}
