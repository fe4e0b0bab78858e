package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ResetTokenVerificationMessage struct {
	Token      string `json:"token" example:"q5b1oY1o4w0bPpQ4kBGe6bnVQe8wS7mE3p0K1yq2y0c" doc:"Reset token value"`
	OnResponse func(a *ResetTokenVerificationResponse)
}

func (m ResetTokenVerificationMessage) Type() string { return "account.password_reset.verify" }

type ResetTokenVerificationResponse struct {
	Found   bool `json:"found" example:"true" doc:"Has the token been found?"`
	Expired bool `json:"expired" example:"true" doc:"Is the token expired or used?"`
}

// ResetTokenVerificationHandler checks a token before the reset form is shown.
// It never redeems.
type ResetTokenVerificationHandler struct {
	repo RepositoryManager
	now  func() time.Time
}

func NewResetTokenVerificationHandler(repo RepositoryManager) *ResetTokenVerificationHandler {
	return &ResetTokenVerificationHandler{
		repo: repo,
		now:  time.Now,
	}
}

func (h *ResetTokenVerificationHandler) Execute(ctx context.Context, event ResetTokenVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during reset token verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResetTokenVerificationHandler) execute(ctx context.Context, event ResetTokenVerificationMessage) error {
	resp := &ResetTokenVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token != "" {
		token, err := h.repo.ResetTokens().GetByHash(ctx, HashResetToken(event.Token))
		if err != nil && !isRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve reset token")
		}

		if err == nil {
			resp.Found = true
			resp.Expired = token.Redeemed() || token.ExpiredAt(h.now())
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
