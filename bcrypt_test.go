package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

var testHasher = auth.BcryptHasher{Cost: bcrypt.MinCost}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := testHasher.HashPassword(tt.password)

			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrNoEmptyString)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)

			err = testHasher.ComparePasswordAndHash(tt.password, hash)
			assert.NoError(t, err)
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	password := "testPassword123!"
	hash, err := testHasher.HashPassword(password)
	assert.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  error
	}{
		{
			name:     "Matching password",
			password: password,
			hash:     hash,
		},
		{
			name:     "Wrong password",
			password: "wrongPassword",
			hash:     hash,
			wantErr:  auth.ErrMismatchedHashAndPassword,
		},
		{
			name:     "Case matters",
			password: "TESTPASSWORD123!",
			hash:     hash,
			wantErr:  auth.ErrMismatchedHashAndPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testHasher.ComparePasswordAndHash(tt.password, tt.hash)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("Invalid hash", func(t *testing.T) {
		err := testHasher.ComparePasswordAndHash(password, "invalidhash")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})
}

func TestRandomPasswordHash(t *testing.T) {
	hash1 := auth.RandomPasswordHash(testHasher)
	hash2 := auth.RandomPasswordHash(testHasher)

	assert.NotEmpty(t, hash1)
	assert.NotEmpty(t, hash2)
	assert.NotEqual(t, hash1, hash2)
}

func TestBcryptHasherHonoursCost(t *testing.T) {
	hash, err := auth.BcryptHasher{Cost: bcrypt.MinCost + 1}.HashPassword("cost-check")
	assert.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	assert.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}
