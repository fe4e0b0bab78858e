package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the user store. Emails are always looked up and stored in
// their normalized form.
type Accounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	Count(ctx context.Context) (int, error)
	CountTx(ctx context.Context, tx bun.IDB) (int, error)

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	UpdateDetails(ctx context.Context, id uuid.UUID, email, givenName, familyName string) error
	UpdateDetailsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email, givenName, familyName string) error
	UpdateAvatar(ctx context.Context, id uuid.UUID, avatar string) error
	UpdateAvatarTx(ctx context.Context, tx bun.IDB, id uuid.UUID, avatar string) error
}

type accounts struct {
	repo repository.Repository[*Account]
	db   *bun.DB
	now  func() time.Time
}

var _ Accounts = (*accounts)(nil)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		repo: repo,
		db:   db,
		now:  time.Now,
	}
}

func (a *accounts) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	record, err := a.repo.GetByID(ctx, id.String())
	if err != nil {
		if isRecordNotFound(err) {
			return nil, accountNotFound("id", id.String())
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, accountNotFound("id", id.String())
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	normalized := NormalizeEmail(email)
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalized).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, accountNotFound("email", normalized)
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) Count(ctx context.Context) (int, error) {
	return a.CountTx(ctx, a.db)
}

func (a *accounts) CountTx(ctx context.Context, tx bun.IDB) (int, error) {
	return tx.NewSelect().Model((*Account)(nil)).Count(ctx)
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

// RegisterTx inserts the account and relies on the unique email index to
// reject duplicates, so two concurrent registrations can not both succeed.
// Only the email index maps to ErrDuplicateEmail, an id collision is a
// plain conflict.
func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	if account == nil {
		return nil, goerrors.New("account is required", goerrors.CategoryBadInput)
	}

	a.prepareDefaults(account)

	if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
		if isEmailUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "account id already in use").
				WithMetadata(map[string]any{"id": account.ID.String()})
		}
		return nil, err
	}

	return account, nil
}

func (a *accounts) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *accounts) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	now := a.now()
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("password_changed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "id", id.String())
}

func (a *accounts) UpdateDetails(ctx context.Context, id uuid.UUID, email, givenName, familyName string) error {
	return a.UpdateDetailsTx(ctx, a.db, id, email, givenName, familyName)
}

func (a *accounts) UpdateDetailsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email, givenName, familyName string) error {
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("email = ?", NormalizeEmail(email)).
		Set("given_name = ?", givenName).
		Set("family_name = ?", familyName).
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if isEmailUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return expectAffected(res, "id", id.String())
}

func (a *accounts) UpdateAvatar(ctx context.Context, id uuid.UUID, avatar string) error {
	return a.UpdateAvatarTx(ctx, a.db, id, avatar)
}

func (a *accounts) UpdateAvatarTx(ctx context.Context, tx bun.IDB, id uuid.UUID, avatar string) error {
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("avatar = ?", avatar).
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "id", id.String())
}

func (a *accounts) prepareDefaults(record *Account) {
	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := a.now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

func accountNotFound(column, value string) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"table":  "accounts",
			"column": column,
			"value":  value,
		})
}

func expectAffected(res sql.Result, column, value string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return accountNotFound(column, value)
	}
	return nil
}

func isRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) ||
		repository.IsRecordNotFound(err) ||
		goerrors.IsNotFound(err)
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return isRecordNotFound(err)
}
