package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murmurapp/murmur/internal/logging"
	"github.com/murmurapp/murmur/internal/user"
)

// Service handles account lifecycle and session business logic
type Service struct {
	store                user.Store
	refreshRepo          RefreshTokenRepository
	tokenService         TokenService
	mailer               Mailer
	logger               *logging.Logger
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
	verifyCodeTTL        time.Duration
}

func NewService(
	store user.Store,
	refreshRepo RefreshTokenRepository,
	tokenService TokenService,
	mailer Mailer,
	logger *logging.Logger,
	accessTokenDuration time.Duration,
	refreshTokenDuration time.Duration,
	verifyCodeTTL time.Duration,
) *Service {
	return &Service{
		store:                store,
		refreshRepo:          refreshRepo,
		tokenService:         tokenService,
		mailer:               mailer,
		logger:               logger,
		accessTokenDuration:  accessTokenDuration,
		refreshTokenDuration: refreshTokenDuration,
		verifyCodeTTL:        verifyCodeTTL,
	}
}

// Register creates a new unverified account, or re-issues credentials for an
// unverified account registered under the same email, then delivers the
// verification code. The verification email is sent synchronously: a delivery
// failure surfaces as ErrEmailDelivery. The already-persisted record is not
// rolled back - re-registering the same email revives it with a fresh code.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if !user.ValidUsername(username) {
		return ErrUsernameInvalid
	}
	if email == "" || len(email) > 254 {
		return ErrEmailInvalid
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrEmailInvalid
	}
	if len(password) < 6 {
		return ErrPasswordTooShort
	}

	taken, err := s.store.VerifiedUsernameExists(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return ErrUsernameTaken
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := generateVerifyCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}
	expiresAt := time.Now().Add(s.verifyCodeTTL)

	existing, err := s.store.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.Verified:
		return ErrEmailTaken

	case err == nil:
		// Unverified account under this email: treat as a re-registration
		// and overwrite its credentials in one conditional update.
		if err := s.store.ReviveUnverified(ctx, email, passwordHash, code, expiresAt); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				// Verified between the read and the update.
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to revive unverified user: %w", err)
		}

	case errors.Is(err, user.ErrNotFound):
		_, err := s.store.Create(ctx, &user.User{
			Username:            username,
			Email:               email,
			PasswordHash:        passwordHash,
			VerifyCode:          code,
			VerifyCodeExpiresAt: expiresAt,
		})
		if err != nil {
			// The unique indexes are the authority; a concurrent insert
			// surfaces here no matter what the earlier reads saw.
			if errors.Is(err, user.ErrDuplicateUsername) {
				return ErrUsernameTaken
			}
			if errors.Is(err, user.ErrDuplicateEmail) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

	default:
		return fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, email, username, code); err != nil {
		s.logger.Warn("failed to send verification email", "email", email, "error", err)
		return ErrEmailDelivery
	}

	return nil
}

// VerifyCode marks the account verified if the submitted code matches the
// stored one and has not expired.
func (s *Service) VerifyCode(ctx context.Context, username, code string) error {
	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if u.VerifyCode != code {
		return ErrCodeMismatch
	}
	now := time.Now()
	if now.After(u.VerifyCodeExpiresAt) {
		return ErrCodeExpired
	}

	// The write re-checks code and expiry so a concurrent re-registration
	// cannot be verified with a stale code.
	if err := s.store.MarkVerified(ctx, username, code, now); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	return nil
}

// SkipVerification marks the account verified without a code. Only reachable
// through the dev-only route; never mounted in production.
func (s *Service) SkipVerification(ctx context.Context, username string) error {
	if err := s.store.ForceVerify(ctx, username); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to skip verification: %w", err)
	}
	return nil
}

// UsernameAvailable reports whether username passes the username rule and is
// not owned by a verified user.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if !user.ValidUsername(username) {
		return false, ErrUsernameInvalid
	}
	exists, err := s.store.VerifiedUsernameExists(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return !exists, nil
}

// SignIn authenticates by username or email and returns a token pair.
// Unverified accounts cannot sign in.
func (s *Service) SignIn(ctx context.Context, identifier, password string) (*AuthTokens, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		u   *user.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.store.GetByEmail(ctx, identifier)
	} else {
		u, err = s.store.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !verifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if !u.Verified {
		return nil, ErrNotVerified
	}

	tokens, err := s.generateTokens(ctx, u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return tokens, nil
}

// RefreshAccessToken rotates the refresh token and returns a new token pair
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	rt, err := s.refreshRepo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if !rt.IsValid() {
		if rt.IsRevoked() {
			return nil, ErrRefreshTokenRevoked
		}
		return nil, ErrRefreshTokenExpired
	}

	// Revoke old refresh token before issuing new ones to prevent reuse
	if err := s.refreshRepo.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to revoke old refresh token: %w", err)
	}

	u, err := s.store.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	tokens, err := s.generateTokens(ctx, u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return tokens, nil
}

// RevokeRefreshToken revokes a refresh token
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return s.refreshRepo.RevokeRefreshToken(ctx, refreshToken)
}

// generateTokens creates both access and refresh tokens
func (s *Service) generateTokens(ctx context.Context, userID uuid.UUID, username string) (*AuthTokens, error) {
	// Access token (short-lived)
	accessToken, err := s.tokenService.CreateToken(userID, username, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	// Refresh token (long-lived, random string)
	refreshToken, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.refreshTokenDuration)
	if err := s.refreshRepo.StoreRefreshToken(ctx, userID, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenDuration.Seconds()),
	}, nil
}
