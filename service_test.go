package auth_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceLoginBindsSession(t *testing.T) {
	service, _, sink := newTestService(t)
	ctx := context.Background()

	id := mustRegister(t, service, "Login@Example.com", "secret-pass")
	sid := auth.NewSessionID()

	_, ok, err := service.Login(ctx, sid, "login@example.com", "wrong-pass")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := service.CurrentAccount(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)

	got, ok, err := service.Login(ctx, sid, "LOGIN@example.com", "secret-pass")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	current, found, err := service.CurrentAccount(ctx, sid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, current.ID)
	assert.Equal(t, "login@example.com", current.Email)
	assert.True(t, current.IsAdmin())

	assert.Contains(t, sink.types(), auth.ActivityEventLoginSuccess)
	assert.Contains(t, sink.types(), auth.ActivityEventLoginFailure)
}

func TestServiceLogout(t *testing.T) {
	service, _, sink := newTestService(t)
	ctx := context.Background()

	mustRegister(t, service, "out@example.com", "secret-pass")
	sid := auth.NewSessionID()

	_, ok, err := service.Login(ctx, sid, "out@example.com", "secret-pass")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, service.Logout(ctx, sid))

	_, found, err := service.CurrentAccount(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Contains(t, sink.types(), auth.ActivityEventLogout)

	require.NoError(t, service.Logout(ctx, sid), "logging out twice is harmless")
}

func TestServiceRegisterBindsSession(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	sid := auth.NewSessionID()

	id, err := service.Register(ctx, sid, "new@example.com", "secret-pass", "Ada", "Lovelace")
	require.NoError(t, err)

	current, found, err := service.CurrentAccount(ctx, sid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, current.ID)
	assert.Equal(t, "Ada", current.GivenName)
	assert.ElementsMatch(t, []auth.Role{auth.RoleAdmin, auth.RoleAuthenticated}, current.Roles)

	sid2 := auth.NewSessionID()
	_, err = service.Register(ctx, sid2, "NEW@example.com", "other-pass", "Dup", "Licate")
	assert.True(t, errors.Is(err, auth.ErrDuplicateEmail))

	_, found, err = service.CurrentAccount(ctx, sid2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestServiceUpdatesRebindSession(t *testing.T) {
	storage := &memoryAvatarStorage{}
	service, _, _ := newTestService(t)
	service.WithAvatarStorage(storage)
	ctx := context.Background()
	sid := auth.NewSessionID()

	id, err := service.Register(ctx, sid, "me@example.com", "secret-pass", "Me", "Myself")
	require.NoError(t, err)

	require.NoError(t, service.UpdateDetails(ctx, sid, id, "Renamed@Example.com", "Renamed", "Person"))

	current, found, err := service.CurrentAccount(ctx, sid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "renamed@example.com", current.Email)
	assert.Equal(t, "Renamed", current.GivenName)
	assert.True(t, current.IsAdmin(), "roles survive a rebind")

	ref, err := service.UpdateAvatar(ctx, sid, id, "face.jpg", bytes.NewReader([]byte("jpeg")), 4)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	current, _, err = service.CurrentAccount(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, ref, current.Avatar)

	_, ok, err := service.Login(ctx, auth.NewSessionID(), "renamed@example.com", "secret-pass")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServiceForgotAndResetPassword(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	mustRegister(t, service, "reset@example.com", "old-password")

	token, err := service.ForgotPassword(ctx, "reset@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	found, expired, err := service.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, expired)

	err = service.ResetPassword(ctx, token, "reset@example.com", "new-password", "new-passwort")
	assert.True(t, errors.Is(err, auth.ErrPasswordMismatch))

	err = service.ResetPassword(ctx, token, "reset@example.com", "new-password", "NEW-PASSWORD")
	assert.True(t, errors.Is(err, auth.ErrPasswordMismatch), "reset confirmation is case sensitive")

	require.NoError(t, service.ResetPassword(ctx, token, "reset@example.com", "new-password", "new-password"))

	_, ok, err := service.Login(ctx, auth.NewSessionID(), "reset@example.com", "old-password")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = service.Login(ctx, auth.NewSessionID(), "reset@example.com", "new-password")
	require.NoError(t, err)
	assert.True(t, ok)

	found, expired, err = service.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, expired)

	err = service.ResetPassword(ctx, token, "reset@example.com", "again-pass", "again-pass")
	assert.True(t, errors.Is(err, auth.ErrInvalidToken))
}

func TestServiceForgotPasswordUnknownEmail(t *testing.T) {
	service, _, _ := newTestService(t)

	token, err := service.ForgotPassword(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestServiceTokenIsBoundToEmail(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	mustRegister(t, service, "a@x.com", "password-a")
	mustRegister(t, service, "b@x.com", "password-b")

	token, err := service.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)

	err = service.ResetPassword(ctx, token, "b@x.com", "hijacked-pass", "hijacked-pass")
	assert.True(t, errors.Is(err, auth.ErrTokenEmailMismatch))

	_, ok, err := service.Login(ctx, auth.NewSessionID(), "b@x.com", "password-b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, service.ResetPassword(ctx, token, "A@X.com", "fresh-pass-a", "fresh-pass-a"))
}

func TestServiceUpdateUserRoles(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	mustRegister(t, service, "first@example.com", "secret-pass")
	second := mustRegister(t, service, "second@example.com", "secret-pass")

	account, err := service.LoadAccount(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []auth.Role{auth.RoleAuthenticated}, account.Roles)

	require.NoError(t, service.UpdateUserRoles(ctx, second, []auth.Role{auth.RoleAuthenticated, auth.RoleAdmin}))

	account, err = service.LoadAccount(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []auth.Role{auth.RoleAdmin, auth.RoleAuthenticated}, account.Roles)

	err = service.UpdateUserRoles(ctx, second, []auth.Role{"Root"})
	assert.True(t, errors.Is(err, auth.ErrUnknownRole))
}

func TestServiceLoadAccountNotFound(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.LoadAccount(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, auth.ErrAccountNotFound))
}
