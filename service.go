package auth

import (
	"context"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AuthService is the entry point for login, registration, password
// recovery and self service profile changes. Operations that change the
// caller's own account re-bind the session right away.
type AuthService struct {
	repo     RepositoryManager
	binder   *SessionBinder
	verifier *CredentialVerifier

	register       *RegisterAccountHandler
	changePassword *ChangePasswordHandler
	initReset      *InitializePasswordResetHandler
	finalizeReset  *FinalizePasswordResetHandler
	verifyReset    *ResetTokenVerificationHandler
	updateDetails  *UpdateAccountDetailsHandler
	updateAvatar   *UpdateAvatarHandler

	useHashid bool
	logger    Logger
	activity  ActivitySink
}

func NewAuthService(repo RepositoryManager, binder *SessionBinder) *AuthService {
	if binder == nil {
		binder = NewSessionBinder(nil)
	}

	return &AuthService{
		repo:           repo,
		binder:         binder,
		verifier:       NewCredentialVerifier(repo.Accounts()),
		register:       NewRegisterAccountHandler(repo),
		changePassword: NewChangePasswordHandler(repo),
		initReset:      NewInitializePasswordResetHandler(repo),
		finalizeReset:  NewFinalizePasswordResetHandler(repo),
		verifyReset:    NewResetTokenVerificationHandler(repo),
		updateDetails:  NewUpdateAccountDetailsHandler(repo),
		updateAvatar:   NewUpdateAvatarHandler(repo, nil),
		logger:         defLogger{},
		activity:       noopActivitySink{},
	}
}

func (s *AuthService) WithLogger(logger Logger) *AuthService {
	if logger == nil {
		return s
	}
	s.logger = logger
	s.binder.WithLogger(logger)
	s.verifier.WithLogger(logger)
	s.register.WithLogger(logger)
	s.changePassword.WithLogger(logger)
	s.initReset.WithLogger(logger)
	s.finalizeReset.WithLogger(logger)
	s.updateDetails.WithLogger(logger)
	s.updateAvatar.WithLogger(logger)
	return s
}

func (s *AuthService) WithActivitySink(sink ActivitySink) *AuthService {
	s.activity = normalizeActivitySink(sink)
	s.verifier.WithActivitySink(sink)
	s.register.WithActivitySink(sink)
	s.changePassword.WithActivitySink(sink)
	s.initReset.WithActivitySink(sink)
	s.finalizeReset.WithActivitySink(sink)
	s.updateDetails.WithActivitySink(sink)
	s.updateAvatar.WithActivitySink(sink)
	return s
}

func (s *AuthService) WithPasswordAuthenticator(p PasswordAuthenticator) *AuthService {
	s.verifier.WithPasswordAuthenticator(p)
	s.register.WithPasswordAuthenticator(p)
	s.changePassword.WithPasswordAuthenticator(p)
	s.finalizeReset.WithPasswordAuthenticator(p)
	return s
}

// WithResetTokenTTL sets the validity of issued tokens, zero disables expiry.
func (s *AuthService) WithResetTokenTTL(ttl time.Duration) *AuthService {
	s.initReset.WithTTL(ttl)
	return s
}

func (s *AuthService) WithTokenMinter(m TokenMinter) *AuthService {
	s.initReset.WithTokenMinter(m)
	return s
}

func (s *AuthService) WithMailer(composer *ResetMessageComposer, mailer Mailer) *AuthService {
	s.initReset.WithMailer(composer, mailer)
	return s
}

func (s *AuthService) WithAvatarStorage(storage AvatarStorage) *AuthService {
	s.updateAvatar.storage = storage
	return s
}

// WithHashidAccountIDs derives account ids from the email address.
func (s *AuthService) WithHashidAccountIDs(enabled bool) *AuthService {
	s.useHashid = enabled
	return s
}

// Login verifies the credentials and binds the account to the session.
// Bad credentials are reported as false with a nil error.
func (s *AuthService) Login(ctx context.Context, sessionID, email, password string) (uuid.UUID, bool, error) {
	id, ok, err := s.verifier.Login(ctx, email, password)
	if err != nil || !ok {
		return uuid.Nil, false, err
	}

	if err := s.rebind(ctx, sessionID, id); err != nil {
		return uuid.Nil, false, err
	}

	return id, true, nil
}

// Logout drops the whole session, so the identity and every other value
// stored under it are gone.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	current, _, _ := s.binder.Current(ctx, sessionID)
	if err := s.binder.Destroy(ctx, sessionID); err != nil {
		return err
	}

	if current != nil {
		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLogout,
			Actor:     accountActor(current.ID.String()),
			AccountID: current.ID.String(),
		})
	}
	return nil
}

// DiscardSession drops a session without recording a logout. Callers use it
// to retire the pre-login id after binding the account to a fresh one.
func (s *AuthService) DiscardSession(ctx context.Context, sessionID string) error {
	return s.binder.Destroy(ctx, sessionID)
}

// Register creates the account and, when a session is given, logs it in.
func (s *AuthService) Register(ctx context.Context, sessionID, email, password, givenName, familyName string) (uuid.UUID, error) {
	var account *Account
	err := s.register.Execute(ctx, RegisterAccountMessage{
		Email:      email,
		Password:   password,
		GivenName:  givenName,
		FamilyName: familyName,
		UseHashid:  s.useHashid,
		OnResponse: func(resp *RegisterAccountResponse) {
			account = resp.Account
		},
	})
	if err != nil {
		return uuid.Nil, err
	}

	if sessionID != "" {
		if err := s.binder.Bind(ctx, sessionID, account); err != nil {
			return account.ID, err
		}
	}

	return account.ID, nil
}

// ChangePassword sets a new password. Roles and sessions are unaffected.
func (s *AuthService) ChangePassword(ctx context.Context, accountID uuid.UUID, newPassword, confirmPassword string) error {
	return s.changePassword.Execute(ctx, ChangePasswordMessage{
		AccountID:       accountID,
		Password:        newPassword,
		ConfirmPassword: confirmPassword,
	})
}

// UpdateDetails edits the caller's name and email and re-binds the session.
func (s *AuthService) UpdateDetails(ctx context.Context, sessionID string, accountID uuid.UUID, email, givenName, familyName string) error {
	err := s.updateDetails.Execute(ctx, UpdateAccountDetailsMessage{
		AccountID:  accountID,
		Email:      email,
		GivenName:  givenName,
		FamilyName: familyName,
	})
	if err != nil {
		return err
	}
	return s.rebind(ctx, sessionID, accountID)
}

// UpdateAvatar stores the image, saves its reference and re-binds the
// session. It returns the stored reference.
func (s *AuthService) UpdateAvatar(ctx context.Context, sessionID string, accountID uuid.UUID, fileName string, content io.Reader, size int64) (string, error) {
	var reference string
	err := s.updateAvatar.Execute(ctx, UpdateAvatarMessage{
		AccountID: accountID,
		FileName:  fileName,
		Content:   content,
		Size:      size,
		OnResponse: func(ref string) {
			reference = ref
		},
	})
	if err != nil {
		return "", err
	}
	return reference, s.rebind(ctx, sessionID, accountID)
}

// Issue creates a reset token of the given type. An unknown email yields an
// empty token and no error.
func (s *AuthService) Issue(ctx context.Context, email string, tokenType TokenType) (string, error) {
	var token string
	err := s.initReset.Execute(ctx, InitializePasswordResetMessage{
		Email:     email,
		TokenType: tokenType,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			token = resp.Token
		},
	})
	return token, err
}

// ForgotPassword issues a forgotten password token and mails the recovery
// link when the email is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	return s.Issue(ctx, email, TokenTypeForgottenPassword)
}

// VerifyResetToken reports whether a token exists and whether it can no
// longer be used.
func (s *AuthService) VerifyResetToken(ctx context.Context, token string) (found bool, expired bool, err error) {
	err = s.verifyReset.Execute(ctx, ResetTokenVerificationMessage{
		Token: token,
		OnResponse: func(resp *ResetTokenVerificationResponse) {
			found = resp.Found
			expired = resp.Expired
		},
	})
	return found, expired, err
}

// Redeem consumes token and sets the new password of the account it was
// issued for.
func (s *AuthService) Redeem(ctx context.Context, token, email, newPassword string) error {
	return s.finalizeReset.Execute(ctx, FinalizePasswordResetMessage{
		Token:    token,
		Email:    email,
		Password: newPassword,
	})
}

// ResetPassword checks the confirmation before redeeming.
func (s *AuthService) ResetPassword(ctx context.Context, token, email, password, confirmPassword string) error {
	if password != confirmPassword {
		return ErrPasswordMismatch
	}
	return s.Redeem(ctx, token, email, password)
}

// UpdateUserRoles replaces the role set of an account.
func (s *AuthService) UpdateUserRoles(ctx context.Context, accountID uuid.UUID, roles []Role) error {
	return s.repo.AccountRoles().UpdateUserRoles(ctx, accountID, roles)
}

// CurrentAccount returns the identity bound to the session.
func (s *AuthService) CurrentAccount(ctx context.Context, sessionID string) (*AccountSnapshot, bool, error) {
	return s.binder.Current(ctx, sessionID)
}

// LoadAccount reads an account together with its roles.
func (s *AuthService) LoadAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := s.repo.Accounts().GetByID(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}

	roles, err := s.repo.AccountRoles().ListRoles(ctx, id)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account roles")
	}
	account.Roles = roles

	return account, nil
}

func (s *AuthService) rebind(ctx context.Context, sessionID string, accountID uuid.UUID) error {
	if sessionID == "" {
		return nil
	}

	account, err := s.LoadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	return s.binder.Bind(ctx, sessionID, account)
}
