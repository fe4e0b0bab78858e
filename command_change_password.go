package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type ChangePasswordMessage struct {
	AccountID       uuid.UUID `json:"account_id"`
	Password        string    `json:"password"`
	ConfirmPassword string    `json:"confirm_password"`
}

func (e ChangePasswordMessage) Type() string { return "account.change_password" }

// ChangePasswordHandler overwrites the stored hash of an account. Roles and
// sessions are left untouched.
type ChangePasswordHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
}

func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:     repo,
		hasher:   NewBcryptHasher(),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ChangePasswordHandler) WithPasswordAuthenticator(p PasswordAuthenticator) *ChangePasswordHandler {
	if p != nil {
		h.hasher = p
	}
	return h
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// the confirmation ignores case here; reset compares ordinally
	if !strings.EqualFold(event.Password, event.ConfirmPassword) {
		return ErrPasswordMismatch
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	if err := h.repo.Accounts().UpdatePassword(ctx, event.AccountID, hash); err != nil {
		if isRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account password")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     accountActor(event.AccountID.String()),
		AccountID: event.AccountID.String(),
	})

	return nil
}
