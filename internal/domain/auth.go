package domain

import "time"

// Roles carried in access tokens. Providers, owners and admins may
// operate the provider-facing queue endpoints.
const (
	RoleCustomer = "CUSTOMER"
	RoleProvider = "PROVIDER"
	RoleOwner    = "OWNER"
	RoleAdmin    = "ADMIN"
)

// AuthClaims is the validated identity attached to a request.
type AuthClaims struct {
	UserID    string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CanOperateQueue reports whether the role may call provider endpoints
// (callNext, complete, no-show, full shop queue).
func CanOperateQueue(role string) bool {
	switch role {
	case RoleProvider, RoleOwner, RoleAdmin:
		return true
	}
	return false
}
