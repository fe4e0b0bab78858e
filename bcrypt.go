package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements PasswordAuthenticator with bcrypt
type BcryptHasher struct {
	Cost int
}

var _ PasswordAuthenticator = BcryptHasher{}

// NewBcryptHasher returns a hasher using the default cost for the build.
func NewBcryptHasher() BcryptHasher {
	return BcryptHasher{Cost: passwordHashCost()}
}

// HashPassword will generate a password hash
func (b BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (b BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// HashPassword hashes with the default hasher
func HashPassword(password string) (string, error) {
	return NewBcryptHasher().HashPassword(password)
}

// ComparePasswordAndHash compares with the default hasher
func ComparePasswordAndHash(password, hash string) error {
	return NewBcryptHasher().ComparePasswordAndHash(password, hash)
}

// RandomPasswordHash is a hash nobody knows the password for. It is used to
// keep the unknown account login path as expensive as the known one.
func RandomPasswordHash(hasher PasswordAuthenticator) string {
	if hasher == nil {
		hasher = NewBcryptHasher()
	}

	h, err := hasher.HashPassword(uuid.New().String())
	if err != nil {
		return RandomPasswordHash(hasher)
	}

	return h
}
