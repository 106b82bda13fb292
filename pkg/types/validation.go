package types

// Size limits enforced before anything reaches the relay or the store.
const (
	MaxUserIDLength  = 64
	MaxNameLength    = 100
	MaxMessageLength = 4096
)

// IsValidUserID reports whether id is a usable user identifier:
// non-empty, bounded, and limited to alphanumerics plus underscore
// and hyphen.
func IsValidUserID(id string) bool {
	if len(id) == 0 || len(id) > MaxUserIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// IsValidRole reports whether role is one of the two marketplace roles.
func IsValidRole(role string) bool {
	return role == RoleVendor || role == RoleClient
}

// IsValidMessage reports whether body is a sendable message body.
func IsValidMessage(body string) bool {
	return len(body) > 0 && len(body) <= MaxMessageLength
}
