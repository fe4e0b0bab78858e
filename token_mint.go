package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ResetTokenBytes is the amount of entropy in a reset token value.
const ResetTokenBytes = 32

// DefaultResetTokenTTL is used when no configuration is provided.
const DefaultResetTokenTTL = 24 * time.Hour

// MintedToken is a freshly generated reset token. Value is what the user
// receives; Hash is what gets stored.
type MintedToken struct {
	Value     string
	Hash      string
	IssuedAt  time.Time
	ExpiresAt *time.Time
}

// TokenMinter generates reset token values
type TokenMinter func() (string, error)

// MintResetToken returns a url safe random value of ResetTokenBytes bytes.
func MintResetToken() (string, error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashResetToken is the lookup key for a token value.
func HashResetToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// NewMintedToken generates a token issued at now. A zero ttl means the token
// never expires.
func NewMintedToken(minter TokenMinter, now time.Time, ttl time.Duration) (*MintedToken, error) {
	if minter == nil {
		minter = MintResetToken
	}

	if ttl < 0 {
		return nil, goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput)
	}

	value, err := minter()
	if err != nil {
		return nil, err
	}

	if value == "" {
		return nil, goerrors.New("token minter returned an empty value", goerrors.CategoryInternal)
	}

	token := &MintedToken{
		Value:    value,
		Hash:     HashResetToken(value),
		IssuedAt: now,
	}

	if ttl > 0 {
		expiresAt := now.Add(ttl)
		token.ExpiresAt = &expiresAt
	}

	return token, nil
}
