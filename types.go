package auth

import (
	"context"
	"fmt"
	"io"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSessionCookieName() string
	GetSessionTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetWebsiteName() string
	GetResetURLTemplate() string
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Mailer delivers composed messages. Delivery is owned by the host
// application, the auth package only builds subject and body.
type Mailer interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, recipients []string, subject, body string) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, recipients []string, subject, body string) error {
	if f == nil {
		return nil
	}
	return f(ctx, recipients, subject, body)
}

// SessionStore is a key value scope partitioned by session id.
type SessionStore interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID, key string) error
	// Clear drops every value held by the session.
	Clear(ctx context.Context, sessionID string) error
}

// AvatarStorage persists avatar images and returns a public reference.
type AvatarStorage interface {
	Save(ctx context.Context, name string, content io.Reader, size int64) (string, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
