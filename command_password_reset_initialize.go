package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string    `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	TokenType  TokenType `json:"token_type" example:"ForgottenPassword" doc:"Purpose of the token."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset" }

// InitializePasswordResetResponse carries the raw token value. Token is
// empty when the email is not registered.
type InitializePasswordResetResponse struct {
	Token     string
	Email     string
	ExpiresAt *time.Time
	Issued    bool
}

// InitializePasswordResetHandler issues reset tokens. Unknown emails are not
// an error: nothing is stored and nothing is sent.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	ttl      time.Duration
	minter   TokenMinter
	composer *ResetMessageComposer
	mailer   Mailer
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		ttl:      DefaultResetTokenTTL,
		minter:   MintResetToken,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithTTL sets how long issued tokens remain valid. Zero disables expiry.
func (h *InitializePasswordResetHandler) WithTTL(ttl time.Duration) *InitializePasswordResetHandler {
	if ttl >= 0 {
		h.ttl = ttl
	}
	return h
}

func (h *InitializePasswordResetHandler) WithTokenMinter(m TokenMinter) *InitializePasswordResetHandler {
	if m != nil {
		h.minter = m
	}
	return h
}

// WithMailer enables delivery of the reset message for issued tokens.
func (h *InitializePasswordResetHandler) WithMailer(composer *ResetMessageComposer, mailer Mailer) *InitializePasswordResetHandler {
	h.composer = composer
	h.mailer = mailer
	return h
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{Email: NormalizeEmail(event.Email)}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !event.TokenType.IsValid() {
		return ErrUnsupportedTokenType
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, resp.Email); err != nil {
			if isRecordNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		minted, err := NewMintedToken(h.minter, h.now(), h.ttl)
		if err != nil {
			return err
		}

		record := &ResetToken{
			TokenHash: minted.Hash,
			Email:     resp.Email,
			TokenType: event.TokenType,
			IssuedAt:  minted.IssuedAt,
			ExpiresAt: minted.ExpiresAt,
		}

		if _, err := h.repo.ResetTokens().CreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create reset token record")
		}

		resp.Token = minted.Value
		resp.ExpiresAt = minted.ExpiresAt
		resp.Issued = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if resp.Issued {
		h.deliver(ctx, resp)
		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventPasswordResetRequested,
			Actor:     accountActor(""),
			Metadata: map[string]any{
				"email":      resp.Email,
				"token_type": string(event.TokenType),
			},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// deliver never fails the issuance, the token is already stored.
func (h *InitializePasswordResetHandler) deliver(ctx context.Context, resp *InitializePasswordResetResponse) {
	if h.composer == nil || h.mailer == nil {
		return
	}

	msg, err := h.composer.Compose(resp.Email, resp.Token)
	if err != nil {
		h.logger.Error("failed to compose password reset message for %s: %v", resp.Email, err)
		return
	}

	if err := h.mailer.Send(ctx, msg.Recipients, msg.Subject, msg.Body); err != nil {
		h.logger.Error("failed to send password reset message to %s: %v", resp.Email, err)
	}
}
