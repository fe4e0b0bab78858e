package auth_test

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintResetToken(t *testing.T) {
	a, err := auth.MintResetToken()
	require.NoError(t, err)
	b, err := auth.MintResetToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err, "token is url safe")
	assert.Len(t, raw, auth.ResetTokenBytes)
}

func TestHashResetToken(t *testing.T) {
	h := auth.HashResetToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, auth.HashResetToken("abc"))
	assert.NotEqual(t, h, auth.HashResetToken("abd"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
}

func TestNewMintedToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tok, err := auth.NewMintedToken(nil, now, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)
	assert.Equal(t, auth.HashResetToken(tok.Value), tok.Hash)
	assert.Equal(t, now, tok.IssuedAt)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *tok.ExpiresAt)

	tok, err = auth.NewMintedToken(func() (string, error) { return "v", nil }, now, 0)
	require.NoError(t, err)
	assert.Equal(t, "v", tok.Value)
	assert.Nil(t, tok.ExpiresAt)

	_, err = auth.NewMintedToken(nil, now, -time.Second)
	assert.Error(t, err)

	_, err = auth.NewMintedToken(func() (string, error) { return "", nil }, now, time.Hour)
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = auth.NewMintedToken(func() (string, error) { return "", boom }, now, time.Hour)
	assert.ErrorIs(t, err, boom)
}

func TestResetTokenExpiry(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Minute)

	tok := &auth.ResetToken{ExpiresAt: &expires}
	assert.False(t, tok.ExpiredAt(now))
	assert.True(t, tok.ExpiredAt(expires))
	assert.True(t, tok.ExpiredAt(expires.Add(time.Second)))

	forever := &auth.ResetToken{}
	assert.False(t, forever.ExpiredAt(now.Add(100*365*24*time.Hour)))

	assert.False(t, auth.TokenType("Other").IsValid())
	assert.True(t, auth.TokenTypeForgottenPassword.IsValid())
}
