package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRoles maps accounts to their role set
type AccountRoles interface {
	ListRoles(ctx context.Context, accountID uuid.UUID) ([]Role, error)
	ListRolesTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]Role, error)
	UpdateUserRoles(ctx context.Context, accountID uuid.UUID, roles []Role) error
	UpdateUserRolesTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, roles []Role) error
}

type accountRoles struct {
	db *bun.DB
}

var _ AccountRoles = (*accountRoles)(nil)

func NewAccountRolesRepository(db *bun.DB) AccountRoles {
	return &accountRoles{db: db}
}

func (r *accountRoles) ListRoles(ctx context.Context, accountID uuid.UUID) ([]Role, error) {
	return r.ListRolesTx(ctx, r.db, accountID)
}

func (r *accountRoles) ListRolesTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]Role, error) {
	var records []AccountRole
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}

	roles := make([]Role, 0, len(records))
	for _, rec := range records {
		roles = append(roles, rec.Role)
	}
	sortRoles(roles)
	return roles, nil
}

// UpdateUserRoles replaces the account's role set with exactly roles.
func (r *accountRoles) UpdateUserRoles(ctx context.Context, accountID uuid.UUID, roles []Role) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return r.UpdateUserRolesTx(ctx, tx, accountID, roles)
	})
}

func (r *accountRoles) UpdateUserRolesTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, roles []Role) error {
	normalized, err := normalizeRoles(roles)
	if err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model((*AccountRole)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx); err != nil {
		return err
	}

	if len(normalized) == 0 {
		return nil
	}

	now := time.Now()
	records := make([]AccountRole, 0, len(normalized))
	for _, role := range normalized {
		records = append(records, AccountRole{
			AccountID: accountID,
			Role:      role,
			CreatedAt: &now,
		})
	}

	_, err = tx.NewInsert().Model(&records).Exec(ctx)
	return err
}
