//go:build !race

package auth

import "golang.org/x/crypto/bcrypt"

// passwordHashCost is used when neither the hasher nor the config set one.
func passwordHashCost() int {
	return bcrypt.DefaultCost + 2
}
