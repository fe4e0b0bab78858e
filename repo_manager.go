package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	AccountRoles() AccountRoles
	ResetTokens() ResetTokens
	// SerializableTx returns the options for transactions whose reads
	// decide their writes. SQLite already serializes writers and gets nil.
	SerializableTx() *sql.TxOptions
}

type mngr struct {
	db           *bun.DB
	accounts     Accounts
	accountRoles AccountRoles
	resetTokens  ResetTokens
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:           db,
		accounts:     NewAccountsRepository(db),
		accountRoles: NewAccountRolesRepository(db),
		resetTokens:  NewResetTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.accountRoles == nil {
		return errors.New("repository accountRoles should be initialized")
	}

	if m.resetTokens == nil {
		return errors.New("repository resetTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) SerializableTx() *sql.TxOptions {
	if m.db == nil || m.db.Dialect().Name() == dialect.SQLite {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) AccountRoles() AccountRoles {
	return m.accountRoles
}

func (m mngr) ResetTokens() ResetTokens {
	return m.resetTokens
}
