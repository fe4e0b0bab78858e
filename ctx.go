package auth

import (
	"context"
)

var accountCtxKey = &contextKey{"account"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithAccount sets the current account snapshot in the given context
func WithAccount(ctx context.Context, account *AccountSnapshot) context.Context {
	return context.WithValue(ctx, accountCtxKey, account)
}

// AccountFromContext finds the current account in the context. Anonymous
// callers have none.
func AccountFromContext(ctx context.Context) (*AccountSnapshot, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*AccountSnapshot)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}

// WithSessionID sets the caller's session id in the given context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sessionID)
}

// SessionIDFromContext extracts the caller's session id
func SessionIDFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(string)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// IsAdmin is a convenience check on the account carried by ctx
func IsAdmin(ctx context.Context) bool {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return false
	}
	return account.IsAdmin()
}
