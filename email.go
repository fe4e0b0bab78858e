package auth

import "strings"

// NormalizeEmail trims and lower cases an email address. Accounts store the
// normalized form so the unique index is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailsMatch compares two addresses case-insensitively.
func EmailsMatch(a, b string) bool {
	return NormalizeEmail(a) == NormalizeEmail(b)
}
