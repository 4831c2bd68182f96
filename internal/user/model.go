package user

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// User is a registered inbox owner. The verification code gates whether the
// username may sign in and receive anonymous messages.
type User struct {
	ID                  uuid.UUID `json:"id"`
	Username            string    `json:"username"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"` // Never expose password hash in JSON
	VerifyCode          string    `json:"-"`
	VerifyCodeExpiresAt time.Time `json:"-"`
	Verified            bool      `json:"verified"`
	AcceptingMessages   bool      `json:"accepting_messages"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,20}$`)

// ValidUsername reports whether s satisfies the username rule:
// 2-20 characters, letters, digits and underscore only.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}
