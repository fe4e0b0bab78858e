package auth

import (
	"time"

	"github.com/goliatone/go-router"
)

// DefaultSessionCookieName is used when the config leaves it empty
const DefaultSessionCookieName = "portal_session"

// SessionCookies reads and writes the signed session cookie
type SessionCookies struct {
	name   string
	tokens *SessionTokens
	Secure bool
	Logger Logger
}

func NewSessionCookies(name string, tokens *SessionTokens) *SessionCookies {
	if name == "" {
		name = DefaultSessionCookieName
	}
	return &SessionCookies{
		name:   name,
		tokens: tokens,
		Logger: defLogger{},
	}
}

// NewSessionCookiesFromConfig builds the cookie handler from Config.
func NewSessionCookiesFromConfig(cfg Config, logger Logger) *SessionCookies {
	tokens := NewSessionTokens([]byte(cfg.GetSigningKey()), cfg.GetSessionTTL(), cfg.GetWebsiteName(), logger)
	c := NewSessionCookies(cfg.GetSessionCookieName(), tokens)
	if logger != nil {
		c.Logger = logger
	}
	return c
}

// Read returns the session id carried by the request cookie.
func (s *SessionCookies) Read(ctx router.Context) (string, bool) {
	raw := ctx.Cookies(s.name)
	if raw == "" {
		return "", false
	}

	sid, err := s.tokens.Validate(raw)
	if err != nil {
		s.Logger.Debug("ignoring invalid session cookie: %v", err)
		return "", false
	}

	return sid, true
}

// Write issues a cookie for sid.
func (s *SessionCookies) Write(ctx router.Context, sid string) error {
	value, expiresAt, err := s.tokens.Generate(sid)
	if err != nil {
		return err
	}

	ctx.Cookie(&router.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return nil
}

// Clear expires the cookie.
func (s *SessionCookies) Clear(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

// Rotate moves the request onto a brand new session id: the cookie is
// reissued and the request context carries the new id. The old id is
// returned so the caller can discard it.
func (s *SessionCookies) Rotate(ctx router.Context) (string, string, error) {
	previous, _ := SessionIDFromContext(ctx.Context())
	next := NewSessionID()

	if err := s.Write(ctx, next); err != nil {
		return previous, "", err
	}

	ctx.SetContext(WithSessionID(ctx.Context(), next))
	return previous, next, nil
}

// SessionMiddleware makes sure every request has a session and loads the
// identity bound to it into the request context.
func SessionMiddleware(cookies *SessionCookies, service *AuthService) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			sid, ok := cookies.Read(ctx)
			if !ok {
				sid = NewSessionID()
				if err := cookies.Write(ctx, sid); err != nil {
					cookies.Logger.Error("failed to issue session cookie: %v", err)
					return ctx.JSON(router.StatusInternalServerError, map[string]any{
						"errors": map[string]string{"session": FailureMessage(err, acceptLanguage(ctx))},
					})
				}
			}

			std := WithSessionID(ctx.Context(), sid)

			account, found, err := service.CurrentAccount(std, sid)
			if err != nil {
				cookies.Logger.Error("failed to load session identity: %v", err)
			}
			if found {
				std = WithAccount(std, account)
			}

			ctx.SetContext(std)
			return next(ctx)
		}
	}
}

// LoggedIn rejects anonymous callers
func LoggedIn() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := AccountFromContext(ctx.Context()); !ok {
				return ctx.JSON(router.StatusUnauthorized, map[string]any{
					"errors": map[string]string{"session": FailureMessage(ErrInvalidSession, acceptLanguage(ctx))},
				})
			}
			return next(ctx)
		}
	}
}
