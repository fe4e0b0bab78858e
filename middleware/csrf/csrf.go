// Package csrf protects the state changing auth routes with a per session
// anti forgery token.
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required for stateless mode")
	ErrSessionMissing   = errors.New("CSRF requires a session")
)

// DefaultTokenLength is the number of random bytes in a token
const DefaultTokenLength = 32

// SessionKey is the session scope key holding the token
const SessionKey = "csrf_token"

// DefaultLocalsKey is the locals key the token is exposed under
const DefaultLocalsKey = "csrf_token"

// DefaultFormFieldName is the form field carrying the token
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the header carrying the token
const DefaultHeaderName = "X-CSRF-Token"

// Config for the middleware
type Config struct {
	Skip func(router.Context) bool

	TokenLength   int
	LocalsKey     string
	FormFieldName string
	HeaderName    string

	// Store keeps one token per session. When nil tokens are stateless and
	// signed with SecureKey.
	Store auth.SessionStore

	// SecureKey signs stateless tokens, at least 32 bytes
	SecureKey []byte

	// Expiration only applies to stateless tokens
	Expiration time.Duration

	SafeMethods  []string
	ErrorHandler func(router.Context, error) error
}

// New returns the middleware. It must run after auth.SessionMiddleware.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			sid, _ := auth.SessionIDFromContext(ctx.Context())

			token, err := tokenFor(ctx.Context(), cfg, sid)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.LocalsKey, token)
			ctx.SetHeader(cfg.HeaderName, token)

			if slices.Contains(cfg.SafeMethods, strings.ToUpper(ctx.Method())) {
				return next(ctx)
			}

			if err := validate(ctx, cfg, sid, token); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return next(ctx)
		}
	}
}

// Token returns the token exposed for the current request.
func Token(ctx router.Context) string {
	if v, ok := ctx.Locals(DefaultLocalsKey).(string); ok {
		return v
	}
	return ""
}

func tokenFor(ctx context.Context, cfg Config, sid string) (string, error) {
	if cfg.Store == nil {
		return generateStatelessToken(cfg, sid)
	}

	if sid == "" {
		return "", ErrSessionMissing
	}

	raw, found, err := cfg.Store.Get(ctx, sid, SessionKey)
	if err != nil {
		return "", err
	}
	if found && len(raw) > 0 {
		return string(raw), nil
	}

	token, err := generateToken(cfg.TokenLength)
	if err != nil {
		return "", err
	}

	if err := cfg.Store.Set(ctx, sid, SessionKey, []byte(token)); err != nil {
		return "", err
	}

	return token, nil
}

func validate(ctx router.Context, cfg Config, sid, expected string) error {
	received := ctx.Header(cfg.HeaderName)
	if received == "" {
		received = ctx.FormValue(cfg.FormFieldName)
	}
	if received == "" {
		return ErrTokenMissing
	}

	if cfg.Store != nil {
		if subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
			return ErrTokenMismatch
		}
		return nil
	}

	return validateStatelessToken(cfg, sid, received)
}

func generateToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func generateStatelessToken(cfg Config, sid string) (string, error) {
	if len(cfg.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s:%s", time.Now().UTC().Unix(), hex.EncodeToString(nonce), sid)
	token := payload + ":" + hex.EncodeToString(sign(cfg.SecureKey, payload))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateStatelessToken(cfg Config, sid, token string) error {
	if len(cfg.SecureKey) == 0 {
		return ErrSecureKeyMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(parts[3])
	if err != nil {
		return ErrTokenMismatch
	}

	if !hmac.Equal(signature, sign(cfg.SecureKey, strings.Join(parts[:3], ":"))) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(sid)) != 1 {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 && time.Now().UTC().After(time.Unix(timestamp, 0).Add(cfg.Expiration)) {
		return ErrTokenExpired
	}

	return nil
}

func sign(key []byte, payload string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.LocalsKey == "" {
		cfg.LocalsKey = DefaultLocalsKey
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	if cfg.Store == nil && len(cfg.SecureKey) > 0 && len(cfg.SecureKey) < 32 {
		panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(cfg.SecureKey)))
	}

	return cfg
}

func defaultErrorHandler(ctx router.Context, err error) error {
	status := router.StatusForbidden
	switch err {
	case ErrTokenMissing:
		status = router.StatusBadRequest
	case ErrSecureKeyMissing, ErrSessionMissing:
		status = router.StatusInternalServerError
	case ErrTokenMismatch, ErrTokenExpired:
	default:
		status = router.StatusInternalServerError
	}
	return ctx.JSON(status, map[string]any{
		"errors": map[string]string{"csrf": err.Error()},
	})
}
