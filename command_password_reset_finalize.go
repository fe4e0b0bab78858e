package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"q5b1oY1o4w0bPpQ4kBGe6bnVQe8wS7mE3p0K1yq2y0c" doc:"Reset token value"`
	Email    string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Password string `json:"password" example:"some_secret_word" doc:"New password"`
}

func (p FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

// FinalizePasswordResetHandler redeems a reset token. Marking the token and
// updating the password share one transaction, and the token is only marked
// if it is still unredeemed, so it can be used at most once.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		hasher:   NewBcryptHasher(),
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) WithPasswordAuthenticator(p PasswordAuthenticator) *FinalizePasswordResetHandler {
	if p != nil {
		h.hasher = p
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return ErrInvalidToken
	}

	passwordHash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	var accountID uuid.UUID
	var tokenID uuid.UUID

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.repo.ResetTokens().GetByHashTx(ctx, tx, HashResetToken(event.Token))
		if err != nil {
			if isRecordNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve reset token")
		}

		if token.Redeemed() || token.TokenType != TokenTypeForgottenPassword {
			return ErrInvalidToken
		}

		now := h.now()
		if token.ExpiredAt(now) {
			return ErrTokenExpired
		}

		if !EmailsMatch(token.Email, event.Email) {
			return ErrTokenEmailMismatch
		}

		marked, err := h.repo.ResetTokens().MarkRedeemedTx(ctx, tx, token.ID, now)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem reset token")
		}

		if !marked {
			return ErrInvalidToken
		}

		account, err := h.repo.Accounts().GetByEmailTx(ctx, tx, token.Email)
		if err != nil {
			if isRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		if err := h.repo.Accounts().UpdatePasswordTx(ctx, tx, account.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account password in database")
		}

		accountID = account.ID
		tokenID = token.ID
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     accountActor(accountID.String()),
		AccountID: accountID.String(),
		Metadata: map[string]any{
			"reset_token_id": tokenID.String(),
		},
	})

	return nil
}
