package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetTokens stores password reset grants
type ResetTokens interface {
	Create(ctx context.Context, token *ResetToken) (*ResetToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, token *ResetToken) (*ResetToken, error)
	GetByHash(ctx context.Context, hash string) (*ResetToken, error)
	GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*ResetToken, error)
	// MarkRedeemedTx flags the token as used only if nobody else did first.
	// It reports false when the token was already redeemed.
	MarkRedeemedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	CountByEmail(ctx context.Context, email string) (int, error)
	PurgeSpent(ctx context.Context, now time.Time) (int64, error)
}

type resetTokens struct {
	db *bun.DB
}

var _ ResetTokens = (*resetTokens)(nil)

func NewResetTokensRepository(db *bun.DB) ResetTokens {
	return &resetTokens{db: db}
}

func (r *resetTokens) Create(ctx context.Context, token *ResetToken) (*ResetToken, error) {
	return r.CreateTx(ctx, r.db, token)
}

func (r *resetTokens) CreateTx(ctx context.Context, tx bun.IDB, token *ResetToken) (*ResetToken, error) {
	if token == nil {
		return nil, goerrors.New("reset token is required", goerrors.CategoryBadInput)
	}

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.Email = NormalizeEmail(token.Email)
	if token.IssuedAt.IsZero() {
		token.IssuedAt = time.Now()
	}

	if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
		return nil, err
	}

	return token, nil
}

func (r *resetTokens) GetByHash(ctx context.Context, hash string) (*ResetToken, error) {
	return r.GetByHashTx(ctx, r.db, hash)
}

func (r *resetTokens) GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*ResetToken, error) {
	record := &ResetToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"table": "reset_tokens",
				})
		}
		return nil, err
	}
	return record, nil
}

func (r *resetTokens) MarkRedeemedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*ResetToken)(nil)).
		Set("redeemed_at = ?", at).
		Where("id = ?", id).
		Where("redeemed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *resetTokens) CountByEmail(ctx context.Context, email string) (int, error) {
	return r.db.NewSelect().
		Model((*ResetToken)(nil)).
		Where("email = ?", NormalizeEmail(email)).
		Count(ctx)
}

// PurgeSpent deletes redeemed tokens and tokens past their expiry.
func (r *resetTokens) PurgeSpent(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*ResetToken)(nil)).
		WhereOr("redeemed_at IS NOT NULL").
		WhereOr("expires_at IS NOT NULL AND expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
