package domain

// Role is the caller's marketplace role, asserted by the auth service.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleTradie   Role = "tradie"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleTradie
}
