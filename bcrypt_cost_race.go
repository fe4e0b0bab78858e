//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race builds run the registration and login paths many times over, the
// production cost makes them crawl.
func passwordHashCost() int {
	return bcrypt.MinCost + 2
}
