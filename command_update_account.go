package auth

import (
	"context"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type UpdateAccountDetailsMessage struct {
	AccountID  uuid.UUID `json:"account_id"`
	Email      string    `json:"email"`
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
}

func (m UpdateAccountDetailsMessage) Type() string { return "account.update_details" }

// UpdateAccountDetailsHandler edits name and email. The email goes through
// the same unique index as registration.
type UpdateAccountDetailsHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewUpdateAccountDetailsHandler(repo RepositoryManager) *UpdateAccountDetailsHandler {
	return &UpdateAccountDetailsHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *UpdateAccountDetailsHandler) WithActivitySink(sink ActivitySink) *UpdateAccountDetailsHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UpdateAccountDetailsHandler) WithLogger(logger Logger) *UpdateAccountDetailsHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateAccountDetailsHandler) Execute(ctx context.Context, event UpdateAccountDetailsMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account update")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateAccountDetailsHandler) execute(ctx context.Context, event UpdateAccountDetailsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.Accounts().UpdateDetails(ctx, event.AccountID, event.Email, event.GivenName, event.FamilyName)
	if err != nil {
		if isRecordNotFound(err) {
			return ErrAccountNotFound
		}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account details")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventAccountUpdated,
		Actor:     accountActor(event.AccountID.String()),
		AccountID: event.AccountID.String(),
		Metadata: map[string]any{
			"fields": []string{"email", "given_name", "family_name"},
		},
	})

	return nil
}

type UpdateAvatarMessage struct {
	AccountID  uuid.UUID
	FileName   string
	Content    io.Reader
	Size       int64
	OnResponse func(reference string)
}

func (m UpdateAvatarMessage) Type() string { return "account.update_avatar" }

// UpdateAvatarHandler stores an uploaded image and records its reference on
// the account. The format is checked before anything is written.
type UpdateAvatarHandler struct {
	repo     RepositoryManager
	storage  AvatarStorage
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewUpdateAvatarHandler(repo RepositoryManager, storage AvatarStorage) *UpdateAvatarHandler {
	return &UpdateAvatarHandler{
		repo:     repo,
		storage:  storage,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (h *UpdateAvatarHandler) WithActivitySink(sink ActivitySink) *UpdateAvatarHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UpdateAvatarHandler) WithLogger(logger Logger) *UpdateAvatarHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateAvatarHandler) Execute(ctx context.Context, event UpdateAvatarMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during avatar update")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateAvatarHandler) execute(ctx context.Context, event UpdateAvatarMessage) error {
	if err := ValidateAvatarFileName(event.FileName); err != nil {
		return err
	}

	if h.storage == nil {
		return goerrors.New("avatar storage is not configured", goerrors.CategoryInternal)
	}

	if event.Content == nil {
		return goerrors.New("avatar content is required", goerrors.CategoryBadInput)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	name := AvatarObjectName(h.now(), event.AccountID, event.FileName)
	reference, err := h.storage.Save(ctx, name, event.Content, event.Size)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store avatar")
	}

	if err := h.repo.Accounts().UpdateAvatar(ctx, event.AccountID, reference); err != nil {
		if isRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save avatar reference")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventAccountUpdated,
		Actor:     accountActor(event.AccountID.String()),
		AccountID: event.AccountID.String(),
		Metadata: map[string]any{
			"fields": []string{"avatar"},
			"avatar": reference,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(reference)
	}

	return nil
}
