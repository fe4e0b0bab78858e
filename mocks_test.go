package auth_test

import (
	"context"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/mock"
)

// MockAccountFinder implements auth.AccountFinder
type MockAccountFinder struct {
	mock.Mock
}

func (m *MockAccountFinder) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSessionStore implements auth.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	args := m.Called(ctx, sessionID, key)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Bool(1), args.Error(2)
}

func (m *MockSessionStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	args := m.Called(ctx, sessionID, key, value)
	return args.Error(0)
}

func (m *MockSessionStore) Delete(ctx context.Context, sessionID, key string) error {
	args := m.Called(ctx, sessionID, key)
	return args.Error(0)
}

func (m *MockSessionStore) Clear(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// MockActivitySink implements auth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
