package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the registered user model
type Account struct {
	bun.BaseModel     `bun:"table:accounts,alias:acc"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"-"`
	GivenName         string     `bun:"given_name,notnull" json:"given_name,omitempty"`
	FamilyName        string     `bun:"family_name,notnull" json:"family_name,omitempty"`
	Avatar            *string    `bun:"avatar,nullzero" json:"avatar,omitempty"`
	Roles             []Role     `bun:"-" json:"roles,omitempty"`
	PasswordChangedAt *time.Time `bun:"password_changed_at,nullzero" json:"password_changed_at,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AvatarReference returns the avatar path or an empty string.
func (a *Account) AvatarReference() string {
	if a == nil || a.Avatar == nil {
		return ""
	}
	return *a.Avatar
}

// HasRole reports whether the account carries the given role.
func (a *Account) HasRole(role Role) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Snapshot returns the session representation of the account.
func (a *Account) Snapshot() *AccountSnapshot {
	if a == nil {
		return nil
	}
	roles := make([]Role, len(a.Roles))
	copy(roles, a.Roles)
	return &AccountSnapshot{
		ID:         a.ID,
		Email:      a.Email,
		GivenName:  a.GivenName,
		FamilyName: a.FamilyName,
		Avatar:     a.AvatarReference(),
		Roles:      roles,
	}
}

// AccountRole links an account to one role
type AccountRole struct {
	bun.BaseModel `bun:"table:account_roles,alias:accr"`
	AccountID     uuid.UUID  `bun:"account_id,pk,type:uuid" json:"account_id"`
	Role          Role       `bun:"role,pk" json:"role"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// TokenType is the purpose a reset token was issued for
type TokenType string

const (
	// TokenTypeForgottenPassword grants one password change without the
	// current password.
	TokenTypeForgottenPassword TokenType = "ForgottenPassword"
)

// IsValid checks the token type is known
func (t TokenType) IsValid() bool {
	return t == TokenTypeForgottenPassword
}

// ResetToken is a single use grant. Only the SHA-256 hash of the token value
// is stored.
type ResetToken struct {
	bun.BaseModel `bun:"table:reset_tokens,alias:rst"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	TokenType     TokenType  `bun:"token_type,notnull" json:"token_type,omitempty"`
	IssuedAt      time.Time  `bun:"issued_at,notnull" json:"issued_at"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	RedeemedAt    *time.Time `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
}

// Redeemed reports whether the token was already used.
func (t *ResetToken) Redeemed() bool {
	return t != nil && t.RedeemedAt != nil
}

// ExpiredAt reports whether the token is past its expiry at the given time.
// Tokens without an expiry never expire.
func (t *ResetToken) ExpiredAt(now time.Time) bool {
	if t == nil || t.ExpiresAt == nil {
		return false
	}
	return !now.Before(*t.ExpiresAt)
}

// AccountSnapshot is the account view cached in the caller's session
type AccountSnapshot struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
	Avatar     string    `json:"avatar,omitempty"`
	Roles      []Role    `json:"roles"`
}

// HasRole reports whether the snapshot carries the given role.
func (s *AccountSnapshot) HasRole(role Role) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the snapshot carries the administrative role.
func (s *AccountSnapshot) IsAdmin() bool {
	return s.HasRole(RoleAdmin)
}
