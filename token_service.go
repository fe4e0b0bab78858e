package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// SessionClaims is the payload of the session cookie
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionTokens signs and verifies the session cookie. The cookie only
// carries the session id; the identity itself lives in the SessionStore.
type SessionTokens struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	logger     Logger
}

func NewSessionTokens(signingKey []byte, ttl time.Duration, issuer string, logger Logger) *SessionTokens {
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionTokens{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		logger:     logger,
	}
}

// TTL is the lifetime of issued cookies
func (ts *SessionTokens) TTL() time.Duration {
	return ts.ttl
}

// Generate signs a token for sessionID
func (ts *SessionTokens) Generate(sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, errors.New("session id must not be empty", errors.CategoryInternal)
	}

	now := time.Now()
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   ts.issuer,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       sessionID,
		},
	}

	var expiresAt time.Time
	if ts.ttl > 0 {
		expiresAt = now.Add(ts.ttl)
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signedString, expiresAt, nil
}

// Validate parses a token string and returns the session id it carries
func (ts *SessionTokens) Validate(tokenString string) (string, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("session token uses unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return "", ErrInvalidSession
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid && claims.SessionID != "" {
		return claims.SessionID, nil
	}

	return "", ErrInvalidSession
}
