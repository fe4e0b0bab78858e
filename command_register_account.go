package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	UseHashid  bool
	OnResponse func(resp *RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountResponse struct {
	Account *Account
}

// RegisterAccountHandler creates accounts. The first account ever created is
// granted the admin role, decided from the count observed in the same
// transaction as the insert.
type RegisterAccountHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
}

func NewRegisterAccountHandler(repo RepositoryManager) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:     repo,
		hasher:   NewBcryptHasher(),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegisterAccountHandler) WithPasswordAuthenticator(p PasswordAuthenticator) *RegisterAccountHandler {
	if p != nil {
		h.hasher = p
	}
	return h
}

func (h *RegisterAccountHandler) WithActivitySink(sink ActivitySink) *RegisterAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

// maxRegisterAttempts bounds retries of transactions the database aborted
// to keep them serializable
const maxRegisterAttempts = 3

// register inserts the account and assigns its roles. The count deciding
// the first admin is read in the same serializable transaction as the
// insert.
func (h *RegisterAccountHandler) register(ctx context.Context, account *Account) error {
	var err error
	for attempt := 1; attempt <= maxRegisterAttempts; attempt++ {
		err = h.repo.RunInTx(ctx, h.repo.SerializableTx(), func(ctx context.Context, tx bun.Tx) error {
			return h.registerTx(ctx, tx, account)
		})
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		h.logger.Warn("registration of %s aborted by the database, attempt %d: %v", account.Email, attempt, err)
	}
	return err
}

func (h *RegisterAccountHandler) registerTx(ctx context.Context, tx bun.Tx, account *Account) error {
	// an email freed by a rename derives the id of the renamed account
	if account.ID != uuid.Nil {
		_, err := h.repo.Accounts().GetByIDTx(ctx, tx, account.ID)
		switch {
		case err == nil:
			account.ID = uuid.New()
		case !isRecordNotFound(err):
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check account id")
		}
	}

	if _, err := h.repo.Accounts().RegisterTx(ctx, tx, account); err != nil {
		return err
	}

	count, err := h.repo.Accounts().CountTx(ctx, tx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count accounts")
	}

	roles := RolesForAccountCount(count)
	if err := h.repo.AccountRoles().UpdateUserRolesTx(ctx, tx, account.ID, roles); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to assign roles")
	}

	account.Roles = roles
	return nil
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Email:        NormalizeEmail(event.Email),
		PasswordHash: hash,
		GivenName:    event.GivenName,
		FamilyName:   event.FamilyName,
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(account.Email); err == nil {
			account.ID = id
		}
	}

	err = h.register(ctx, account)
	if err != nil && !errors.Is(err, ErrDuplicateEmail) && isConflict(err) {
		// a conflict that is not the email index may still be a concurrent
		// registration of the same derived id
		if _, lookupErr := h.repo.Accounts().GetByEmail(ctx, account.Email); lookupErr == nil {
			err = ErrDuplicateEmail
		}
	}

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	h.logger.Info("registered account %s with roles %v", account.ID, account.Roles)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"roles": account.Roles,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAccountResponse{Account: account})
	}

	return nil
}
