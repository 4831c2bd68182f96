package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the users table row. Uniqueness of username and email is enforced
// by the users_username_key and users_email_key constraints so that
// concurrent registrations cannot race past an application-level check.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                  uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Username            string    `bun:"username,notnull"`
	Email               string    `bun:"email,notnull"`
	PasswordHash        string    `bun:"password_hash,notnull"`
	VerifyCode          string    `bun:"verify_code,notnull"`
	VerifyCodeExpiresAt time.Time `bun:"verify_code_expires_at,notnull"`
	Verified            bool      `bun:"verified,notnull"`
	AcceptingMessages   bool      `bun:"accepting_messages,notnull"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Message is the messages table row. The seq column is a bigserial that
// records insertion order; retrieval sorts by received_at then seq so that
// rows appended within the same timestamp still come back newest first.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Seq        int64     `bun:"seq,autoincrement"`
	UserID     uuid.UUID `bun:"user_id,type:uuid,notnull"`
	Content    string    `bun:"content,notnull"`
	ReceivedAt time.Time `bun:"received_at,notnull,default:current_timestamp"`
}
