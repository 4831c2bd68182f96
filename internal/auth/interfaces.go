package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenService defines the interface for access token creation and validation.
type TokenService interface {
	CreateToken(userID uuid.UUID, username string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// RefreshTokenRepository defines the interface for refresh token storage
type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
}

// Mailer delivers the verification code to a freshly registered address.
type Mailer interface {
	SendVerificationCode(ctx context.Context, toEmail, username, code string) error
}
