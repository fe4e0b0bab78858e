package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AccountFinder is the lookup the verifier needs from the user store
type AccountFinder interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

// CredentialVerifier checks email and password pairs
type CredentialVerifier struct {
	store    AccountFinder
	hasher   PasswordAuthenticator
	logger   Logger
	activity ActivitySink

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialVerifier will create a new CredentialVerifier
func NewCredentialVerifier(store AccountFinder) *CredentialVerifier {
	return &CredentialVerifier{
		store:    store,
		hasher:   NewBcryptHasher(),
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (v *CredentialVerifier) WithLogger(l Logger) *CredentialVerifier {
	if l != nil {
		v.logger = l
	}
	return v
}

func (v *CredentialVerifier) WithPasswordAuthenticator(p PasswordAuthenticator) *CredentialVerifier {
	if p != nil {
		v.hasher = p
	}
	return v
}

// WithActivitySink sets the sink used to emit login events.
func (v *CredentialVerifier) WithActivitySink(sink ActivitySink) *CredentialVerifier {
	v.activity = normalizeActivitySink(sink)
	return v
}

// Login returns the account id when the credentials match. An unknown email
// and a wrong password both yield false with a nil error, and take the same
// time since a hash comparison runs either way. Errors are only returned
// when the store itself fails.
func (v *CredentialVerifier) Login(ctx context.Context, email, password string) (uuid.UUID, bool, error) {
	account, err := v.store.GetByEmail(ctx, email)
	if err != nil {
		if !isRecordNotFound(err) {
			return uuid.Nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during login")
		}

		_ = v.hasher.ComparePasswordAndHash(password, v.getDummyHash())
		v.recordFailure(ctx, email, "unknown_email")
		return uuid.Nil, false, nil
	}

	if err := v.hasher.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			v.logger.Error("password comparison failed for account %s: %v", account.ID, err)
		}
		v.recordFailure(ctx, email, "password_mismatch")
		return uuid.Nil, false, nil
	}

	recordActivity(ctx, v.activity, v.logger, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		Actor:      accountActor(account.ID.String()),
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
	})

	return account.ID, true, nil
}

func (v *CredentialVerifier) recordFailure(ctx context.Context, email, reason string) {
	recordActivity(ctx, v.activity, v.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     accountActor(""),
		Metadata: map[string]any{
			"email":  NormalizeEmail(email),
			"reason": reason,
		},
		OccurredAt: time.Now(),
	})
}

func (v *CredentialVerifier) getDummyHash() string {
	v.dummyOnce.Do(func() {
		v.dummyHash = RandomPasswordHash(v.hasher)
	})
	return v.dummyHash
}
