package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerWith(repo auth.RepositoryManager, email string, useHashid bool) (*auth.Account, error) {
	var account *auth.Account
	err := auth.NewRegisterAccountHandler(repo).
		WithPasswordAuthenticator(testHasher).
		WithLogger(testLogger{}).
		Execute(context.Background(), auth.RegisterAccountMessage{
			Email:      email,
			Password:   "password123",
			GivenName:  "Given",
			FamilyName: "Family",
			UseHashid:  useHashid,
			OnResponse: func(resp *auth.RegisterAccountResponse) {
				account = resp.Account
			},
		})
	return account, err
}

func TestRegisterHashidReusesFreedEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, err := registerWith(repo, "old@x.com", true)
	require.NoError(t, err)

	require.NoError(t, repo.Accounts().UpdateDetails(ctx, first.ID, "new@x.com", "Given", "Family"))

	second, err := registerWith(repo, "old@x.com", true)
	require.NoError(t, err, "a freed email can be registered again")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []auth.Role{auth.RoleAuthenticated}, second.Roles)

	_, err = registerWith(repo, "new@x.com", true)
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	count, err := repo.Accounts().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRegisterIDConflictIsNotDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	existing := register(t, repo, "owner@x.com")

	_, err := repo.Accounts().Register(ctx, &auth.Account{
		ID:           existing.ID,
		Email:        "other@x.com",
		PasswordHash: "hash",
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, auth.ErrDuplicateEmail))
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	for _, useHashid := range []bool{false, true} {
		name := "uuid"
		if useHashid {
			name = "hashid"
		}

		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newTestRepo(t)

			const workers = 8
			errs := make([]error, workers)

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = registerWith(repo, "race@x.com", useHashid)
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
			}
			assert.Equal(t, 1, succeeded)

			count, err := repo.Accounts().Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			account, err := repo.Accounts().GetByEmail(ctx, "race@x.com")
			require.NoError(t, err)
			roles, err := repo.AccountRoles().ListRoles(ctx, account.ID)
			require.NoError(t, err)
			assert.ElementsMatch(t, []auth.Role{auth.RoleAdmin, auth.RoleAuthenticated}, roles)
		})
	}
}

func TestFinalizeResetConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	account := register(t, repo, "a@x.com")
	resp := issue(t, repo, "a@x.com")

	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = finalize(repo, resp.Token, "a@x.com", "brandnew123")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	}
	assert.Equal(t, 1, succeeded, "a token is redeemed exactly once")

	stored, err := repo.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.NoError(t, testHasher.ComparePasswordAndHash("brandnew123", stored.PasswordHash))
}

func TestFinalizeResetRollsBackWhenAccountMissing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	account := register(t, repo, "a@x.com")
	resp := issue(t, repo, "a@x.com")

	// the token still names a@x.com but no account owns it
	require.NoError(t, repo.Accounts().UpdateDetails(ctx, account.ID, "moved@x.com", "Given", "Family"))

	err := finalize(repo, resp.Token, "a@x.com", "brandnew123")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)

	stored, err := repo.ResetTokens().GetByHash(ctx, auth.HashResetToken(resp.Token))
	require.NoError(t, err)
	assert.False(t, stored.Redeemed(), "the failed redemption left the token unredeemed")

	require.NoError(t, repo.Accounts().UpdateDetails(ctx, account.ID, "a@x.com", "Given", "Family"))
	require.NoError(t, finalize(repo, resp.Token, "a@x.com", "brandnew123"))

	updated, err := repo.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.NoError(t, testHasher.ComparePasswordAndHash("brandnew123", updated.PasswordHash))
}

func TestSerializableTxOnSQLite(t *testing.T) {
	assert.Nil(t, newTestRepo(t).SerializableTx(), "sqlite serializes writers on its own")
}
