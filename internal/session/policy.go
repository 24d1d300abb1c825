package session

import "atlaskg.org/internal/account"

// Allowed reports whether the principal's role is in the route's allowed
// set. Role sets are exact: ADMIN does not implicitly satisfy an
// EDITOR-only set. The source route table has no role hierarchy and the
// check must not invent one.
func Allowed(principal *account.User, allowed ...account.Role) bool {
	if principal == nil {
		return false
	}
	for _, role := range allowed {
		if principal.Role == role {
			return true
		}
	}
	return false
}
