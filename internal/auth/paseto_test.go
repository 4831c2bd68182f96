package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPasetoServiceRejectsBadKeyLength(t *testing.T) {
	_, err := NewPasetoService([]byte("too short"))
	assert.Error(t, err)
}

func TestPasetoRoundTrip(t *testing.T) {
	service, err := NewPasetoService(testPasetoKey)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := service.CreateToken(userID, "alice", 15*time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt, 5*time.Second)
}

func TestPasetoRejectsTamperedToken(t *testing.T) {
	service, err := NewPasetoService(testPasetoKey)
	require.NoError(t, err)

	token, err := service.CreateToken(uuid.New(), "alice", 15*time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.VerifyToken("not a token at all")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasetoRejectsExpiredToken(t *testing.T) {
	service, err := NewPasetoService(testPasetoKey)
	require.NoError(t, err)

	token, err := service.CreateToken(uuid.New(), "alice", -time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestPasetoRejectsTokenFromDifferentKey(t *testing.T) {
	serviceA, err := NewPasetoService(testPasetoKey)
	require.NoError(t, err)
	serviceB, err := NewPasetoService([]byte("abcdefghijklmnopqrstuvwxyz012345"))
	require.NoError(t, err)

	token, err := serviceA.CreateToken(uuid.New(), "alice", 15*time.Minute)
	require.NoError(t, err)

	_, err = serviceB.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := hashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.True(t, verifyPassword(hash, "secret123"))
	assert.False(t, verifyPassword(hash, "secret124"))
	assert.False(t, verifyPassword("not-a-hash", "secret123"))

	// Same password hashes differently thanks to the random salt.
	other, err := hashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}
