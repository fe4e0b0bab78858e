package auth

import "sort"

// Role is a named permission grouping
type Role string

const (
	// RoleAdmin is the administrative role, granted to the first account only
	RoleAdmin Role = "Admin"
	// RoleAuthenticated is granted to every registered account
	RoleAuthenticated Role = "Authenticated"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleAuthenticated:
		return true
	default:
		return false
	}
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleAdmin,
		RoleAuthenticated,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// RolesForAccountCount returns the roles a freshly registered account gets
// given the number of accounts that exist once it has been inserted.
func RolesForAccountCount(count int) []Role {
	if count == 1 {
		return []Role{RoleAdmin, RoleAuthenticated}
	}
	return []Role{RoleAuthenticated}
}

// normalizeRoles validates, deduplicates and sorts the given roles.
func normalizeRoles(roles []Role) ([]Role, error) {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !r.IsValid() {
			return nil, ErrUnknownRole
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sortRoles(out)
	return out, nil
}

func sortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
}
