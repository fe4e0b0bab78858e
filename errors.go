package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeDuplicateEmail         = "DUPLICATE_EMAIL"
	TextCodeInvalidToken           = "INVALID_TOKEN"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeTokenEmailMismatch     = "TOKEN_EMAIL_MISMATCH"
	TextCodePasswordMismatch       = "PASSWORD_MISMATCH"
	TextCodeUnknownRole            = "UNKNOWN_ROLE"
	TextCodeUnsupportedTokenType   = "UNSUPPORTED_TOKEN_TYPE"
	TextCodeUnsupportedAvatar      = "UNSUPPORTED_AVATAR_FORMAT"
	TextCodeInvalidSession         = "INVALID_SESSION"
	TextCodeAccountNotFound        = "ACCOUNT_NOT_FOUND"
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeEmptyPassword          = "EMPTY_PASSWORD"
	TextCodeMismatchedHashPassword = "MISMATCHED_HASH"
)

// ErrDuplicateEmail is returned when registering or updating to an email
// address another account already owns.
var ErrDuplicateEmail = goerrors.New("the email address is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrInvalidToken covers unknown and already redeemed reset tokens.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned when a reset token is past its expiry.
var ErrTokenExpired = goerrors.New("password reset token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenEmailMismatch is returned when the email presented at redemption
// differs from the one the token was issued for.
var ErrTokenEmailMismatch = goerrors.New("token was not issued for this email address", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenEmailMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordMismatch is returned when a password and its confirmation differ.
var ErrPasswordMismatch = goerrors.New("the passwords you entered do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrUnknownRole is returned for role names outside the known vocabulary.
var ErrUnknownRole = goerrors.New("unknown role", goerrors.CategoryValidation).
	WithTextCode(TextCodeUnknownRole).
	WithCode(goerrors.CodeBadRequest)

// ErrUnsupportedTokenType is returned when issuing a token of an unknown type.
var ErrUnsupportedTokenType = goerrors.New("unsupported token type", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnsupportedTokenType).
	WithCode(goerrors.CodeBadRequest)

// ErrUnsupportedAvatarFormat is returned for avatar uploads that are not
// PNG, JPG or GIF files.
var ErrUnsupportedAvatarFormat = goerrors.New("unexpected image format provided", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnsupportedAvatar).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidSession is returned when a session cookie can not be verified.
var ErrInvalidSession = goerrors.New("invalid session", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotFound is returned when an operation targets a missing account.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials is the user facing failure for a rejected login.
var ErrInvalidCredentials = goerrors.New("invalid account credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeMismatchedHashPassword).
	WithCode(goerrors.CodeUnauthorized)

var businessFailures = []error{
	ErrDuplicateEmail,
	ErrInvalidToken,
	ErrTokenExpired,
	ErrTokenEmailMismatch,
	ErrPasswordMismatch,
	ErrUnknownRole,
	ErrUnsupportedTokenType,
	ErrUnsupportedAvatarFormat,
	ErrInvalidCredentials,
}

// IsBusinessFailure reports whether err is an expected outcome that should
// be shown to the user rather than treated as a fault.
func IsBusinessFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range businessFailures {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isEmailUniqueViolation narrows isUniqueViolation to the accounts email
// index. Every driver names the column or the accounts_email_uidx index in
// its message.
func isEmailUniqueViolation(err error) bool {
	return isUniqueViolation(err) && strings.Contains(strings.ToLower(err.Error()), "email")
}

// isSerializationFailure reports transactions aborted by the database to
// keep serializable isolation. Postgres and MySQL both use SQLSTATE 40001.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	le := strings.ToLower(err.Error())
	return strings.Contains(le, "40001") ||
		strings.Contains(le, "could not serialize") ||
		strings.Contains(le, "deadlock found")
}

// isConflict reports conflict category errors and raw unique violations.
func isConflict(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
		return true
	}
	return isUniqueViolation(err)
}

// isUniqueViolation inspects driver errors for unique constraint failures.
// SQLite, Postgres (23505) and MySQL (1062) report them differently and the
// drivers are not imported here.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	le := strings.ToLower(err.Error())
	return strings.Contains(le, "unique") ||
		strings.Contains(le, "duplicate") ||
		strings.Contains(le, "23505") ||
		strings.Contains(le, "1062")
}
