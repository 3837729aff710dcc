package domain

// RoleName is the closed set of role names.
type RoleName string

const (
	RoleCustomer RoleName = "customer"
	RoleEmployee RoleName = "employee"
)

// Permission is a fine-grained capability name.
type Permission string

const (
	PermCreatePayment       Permission = "create_payment"
	PermViewOwnTransactions Permission = "view_own_transactions"
	PermVerifyTransactions  Permission = "verify_transactions"
	PermSubmitToSwift       Permission = "submit_to_swift"
	PermViewAllTransactions Permission = "view_all_transactions"
)

var knownPermissions = map[Permission]struct{}{
	PermCreatePayment:       {},
	PermViewOwnTransactions: {},
	PermVerifyTransactions:  {},
	PermSubmitToSwift:       {},
	PermViewAllTransactions: {},
}

// Valid reports whether p belongs to the fixed permission enumeration.
func (p Permission) Valid() bool {
	_, ok := knownPermissions[p]
	return ok
}

// RoleForKind maps an account kind to the role every identity of that kind holds.
func RoleForKind(kind AccountKind) RoleName {
	if kind == KindEmployee {
		return RoleEmployee
	}
	return RoleCustomer
}

// Role groups a set of permissions.
type Role struct {
	ID          string       `json:"id"`
	Name        RoleName     `json:"role_name"`
	Permissions []Permission `json:"permissions"`
	IsActive    bool         `json:"is_active"`
}

// Has reports whether the role grants p. An inactive role grants nothing.
func (r *Role) Has(p Permission) bool {
	if r == nil || !r.IsActive {
		return false
	}
	for _, granted := range r.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// PermissionStrings returns the permissions as plain strings, e.g. for token claims.
func (r *Role) PermissionStrings() []string {
	out := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, string(p))
	}
	return out
}

// DefaultRoles is the seed set for a fresh deployment.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:        RoleCustomer,
			Permissions: []Permission{PermCreatePayment, PermViewOwnTransactions},
			IsActive:    true,
		},
		{
			Name:        RoleEmployee,
			Permissions: []Permission{PermVerifyTransactions, PermSubmitToSwift, PermViewAllTransactions},
			IsActive:    true,
		},
	}
}
