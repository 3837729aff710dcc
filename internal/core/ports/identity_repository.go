package ports

import (
	"context"
	"time"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// IdentityRepository is the credential store. Read methods that return a
// SecretHash are only used on the authentication path.
type IdentityRepository interface {
	// FindCustomerByUsername returns the customer including its secret hash
	// and ciphertext fields, or domain.ErrIdentityNotFound.
	FindCustomerByUsername(ctx context.Context, username string) (*domain.Customer, error)
	// FindEmployeeByLogin resolves an employee by username or employee id.
	FindEmployeeByLogin(ctx context.Context, login string) (*domain.Identity, error)
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	// GetIdentityWithRole loads an identity and its role in one composed read.
	// The secret hash is never populated.
	GetIdentityWithRole(ctx context.Context, ref domain.IdentityRef) (*domain.Identity, *domain.Role, error)
	UsernameTaken(ctx context.Context, kind domain.AccountKind, username string) (bool, error)
	// LastExternalID returns the external id of the most recently created
	// identity of the given kind, or "" when there is none.
	LastExternalID(ctx context.Context, kind domain.AccountKind) (string, error)
	// CreateCustomer persists a new customer. A unique-index violation is
	// reported as *domain.ConflictError naming the field.
	CreateCustomer(ctx context.Context, c *domain.Customer) (*domain.Customer, error)
	// UpsertEmployee creates or refreshes a pre-provisioned employee.
	UpsertEmployee(ctx context.Context, e *domain.Identity) (*domain.Identity, error)
}

// LockoutStore is the per-identity atomic update primitive.
type LockoutStore interface {
	LoadLockout(ctx context.Context, ref domain.IdentityRef) (domain.LockoutState, error)
	// SwapLockout writes next only if the stored version still equals
	// expectedVersion, bumping the version. It returns
	// domain.ErrLockoutConflict when another writer got there first.
	// lastLogin is written when non-nil.
	SwapLockout(ctx context.Context, ref domain.IdentityRef, expectedVersion int64, next domain.LockoutState, lastLogin *time.Time) error
}

// RoleRepository persists roles.
type RoleRepository interface {
	FindByName(ctx context.Context, name domain.RoleName) (*domain.Role, error)
	FindByID(ctx context.Context, id string) (*domain.Role, error)
	Upsert(ctx context.Context, role *domain.Role) (*domain.Role, error)
}
