package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrNotVerified        = errors.New("account not verified, please check your inbox")
	ErrUsernameInvalid    = errors.New("username must be 2-20 characters: letters, digits and underscore")
	ErrEmailInvalid       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("user already exists with this email")
	ErrEmailDelivery      = errors.New("failed to send verification email")
	ErrUserNotFound       = errors.New("user not found")
	ErrCodeMismatch       = errors.New("incorrect verification code")
	ErrCodeExpired        = errors.New("verification code has expired")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token has been revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token has expired")
)

// AuthTokens is the token pair returned on sign-in and refresh.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken is the stored (hashed) long-lived token.
type RefreshToken struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) IsValid() bool {
	return !t.IsExpired() && !t.IsRevoked()
}

// hashToken returns the hex sha256 of a token. Only hashes are stored so a
// storage leak does not yield usable tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// generateVerifyCode produces a 6-digit numeric code in [100000, 999999].
func generateVerifyCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return (n.Add(n, big.NewInt(100000))).String(), nil
}
