package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-portal-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewSessionIDIsUnique(t *testing.T) {
	a := auth.NewSessionID()
	b := auth.NewSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestSessionBinderBindAndUnbind(t *testing.T) {
	ctx := context.Background()
	binder := auth.NewSessionBinder(nil).WithLogger(testLogger{})
	sid := auth.NewSessionID()

	_, found, err := binder.Current(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)

	account := &auth.Account{
		ID:        uuid.New(),
		Email:     "a@x.com",
		GivenName: "Ann",
		Roles:     []auth.Role{auth.RoleAdmin, auth.RoleAuthenticated},
	}
	require.NoError(t, binder.Bind(ctx, sid, account))

	current, found, err := binder.Current(ctx, sid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, account.ID, current.ID)
	assert.Equal(t, "Ann", current.GivenName)
	assert.True(t, current.IsAdmin())

	other := &auth.Account{ID: uuid.New(), Email: "b@x.com", Roles: []auth.Role{auth.RoleAuthenticated}}
	require.NoError(t, binder.Bind(ctx, sid, other))

	current, found, err = binder.Current(ctx, sid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, other.ID, current.ID, "rebinding replaces the identity")
	assert.False(t, current.IsAdmin())

	require.NoError(t, binder.Unbind(ctx, sid))
	_, found, err = binder.Current(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionBinderRequiresSessionID(t *testing.T) {
	binder := auth.NewSessionBinder(nil)
	err := binder.Bind(context.Background(), "", &auth.Account{ID: uuid.New()})
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestSessionBinderDropsUnreadableValue(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemorySessionStore(time.Hour)
	require.NoError(t, store.Set(ctx, "sid", auth.CurrentAccountKey, []byte("{not json")))

	binder := auth.NewSessionBinder(store).WithLogger(testLogger{})
	_, found, err := binder.Current(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Get(ctx, "sid", auth.CurrentAccountKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionBinderStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockSessionStore)
	store.On("Delete", ctx, "sid", auth.CurrentAccountKey).Return(nil).Once()
	store.On("Set", ctx, "sid", auth.CurrentAccountKey, mock.Anything).Return(errors.New("redis down")).Once()

	binder := auth.NewSessionBinder(store).WithLogger(testLogger{})
	err := binder.Bind(ctx, "sid", &auth.Account{ID: uuid.New()})
	assert.Error(t, err)
	store.AssertExpectations(t)
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemorySessionStore(time.Hour)

	value := []byte("value")
	require.NoError(t, store.Set(ctx, "s1", "k", value))
	value[0] = 'X'

	got, found, err := store.Get(ctx, "s1", "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "value", string(got), "store keeps its own copy")

	_, found, err = store.Get(ctx, "s2", "k")
	require.NoError(t, err)
	assert.False(t, found, "sessions are isolated")

	require.NoError(t, store.Delete(ctx, "s1", "k"))
	_, found, err = store.Get(ctx, "s1", "k")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, store.Delete(ctx, "missing", "k"))
}

func TestMemorySessionStoreIdleExpiry(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemorySessionStore(5 * time.Millisecond)

	require.NoError(t, store.Set(ctx, "s1", "k", []byte("v")))
	time.Sleep(20 * time.Millisecond)

	_, found, err := store.Get(ctx, "s1", "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemorySessionStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemorySessionStore(5 * time.Millisecond)

	require.NoError(t, store.Set(ctx, "idle-1", "csrf", []byte("a")))
	require.NoError(t, store.Set(ctx, "idle-2", "csrf", []byte("b")))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.Set(ctx, "fresh", "csrf", []byte("c")))

	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 2, store.Sweep(time.Now()))
	assert.Equal(t, 1, store.Len())

	_, found, err := store.Get(ctx, "fresh", "csrf")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemorySessionStoreSweepWithoutTTL(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemorySessionStore(0)
	require.NoError(t, store.Set(ctx, "s1", "k", []byte("v")))

	assert.Equal(t, 0, store.Sweep(time.Now().Add(24*time.Hour)))
	assert.Equal(t, 1, store.Len())
}

func TestSessionBinderDestroyClearsEveryValue(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemorySessionStore(time.Hour)
	binder := auth.NewSessionBinder(store)

	require.NoError(t, binder.Bind(ctx, "sid", &auth.Account{ID: uuid.New(), Email: "a@x.com"}))
	require.NoError(t, store.Set(ctx, "sid", "csrf_token", []byte("token")))

	require.NoError(t, binder.Destroy(ctx, "sid"))

	_, found, err := binder.Current(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Get(ctx, "sid", "csrf_token")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, store.Len())
}

func TestSessionBinderDestroyStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockSessionStore)
	store.On("Clear", ctx, "sid").Return(errors.New("redis down")).Once()

	binder := auth.NewSessionBinder(store)
	assert.Error(t, binder.Destroy(ctx, "sid"))
	assert.NoError(t, binder.Destroy(ctx, ""))
	store.AssertExpectations(t)
}

func TestSessionTokens(t *testing.T) {
	tokens := auth.NewSessionTokens([]byte("signing-key"), time.Hour, "portal", testLogger{})
	assert.Equal(t, time.Hour, tokens.TTL())

	raw, expiresAt, err := tokens.Generate("sid-123")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	sid, err := tokens.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "sid-123", sid)

	_, err = tokens.Validate(raw + "x")
	assert.ErrorIs(t, err, auth.ErrInvalidSession)

	other := auth.NewSessionTokens([]byte("other-key"), time.Hour, "portal", testLogger{})
	_, err = other.Validate(raw)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)

	wrongIssuer := auth.NewSessionTokens([]byte("signing-key"), time.Hour, "elsewhere", testLogger{})
	_, err = wrongIssuer.Validate(raw)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)

	_, _, err = tokens.Generate("")
	assert.Error(t, err)
}

func TestSessionTokensExpire(t *testing.T) {
	key := []byte("signing-key")
	tokens := auth.NewSessionTokens(key, time.Hour, "", nil)

	claims := auth.SessionClaims{
		SessionID: "sid",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = tokens.Validate(raw)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Validate(none)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestSessionTokensWithoutTTL(t *testing.T) {
	tokens := auth.NewSessionTokens([]byte("signing-key"), 0, "", nil)

	raw, expiresAt, err := tokens.Generate("sid")
	require.NoError(t, err)
	assert.True(t, expiresAt.IsZero())

	sid, err := tokens.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "sid", sid)
}
