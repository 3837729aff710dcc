package ports

import (
	"context"
	"time"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// RegisterCustomerInput carries the self-service registration form.
type RegisterCustomerInput struct {
	FullName      string
	NationalID    string
	AccountNumber string
	Username      string
	Password      string
	RequestID     string
}

// CustomerLoginInput is the customer credential triple.
type CustomerLoginInput struct {
	Username      string
	AccountNumber string
	Password      string
	// AttemptKey identifies the request so a retried request does not
	// record a second failure. Optional.
	AttemptKey string
}

// EmployeeLoginInput accepts either the username or the employee id as Login.
type EmployeeLoginInput struct {
	Login      string
	Password   string
	AttemptKey string
}

// IdentitySummary is the safe, display-only view of an identity.
type IdentitySummary struct {
	ID          string
	Kind        domain.AccountKind
	ExternalID  string
	DisplayName string
	Username    string
	Role        domain.RoleName
	Permissions []string
	LastLoginAt *time.Time
	CreatedAt   time.Time
}

// LoginResult is returned for every business outcome of a login. Token and
// Identity are only set when Verdict.Outcome is domain.OutcomeSuccess.
type LoginResult struct {
	Verdict   domain.LoginVerdict
	Token     string
	ExpiresAt time.Time
	Identity  *IdentitySummary
}

// CustomerProfile is the customer profile with the account number masked.
type CustomerProfile struct {
	IdentitySummary
	MaskedAccountNumber string
	IsActive            bool
}

// EmployeeProfile is the employee profile.
type EmployeeProfile struct {
	IdentitySummary
	IsActive bool
}

// AuthService is the authentication orchestrator.
type AuthService interface {
	RegisterCustomer(ctx context.Context, in RegisterCustomerInput) (*IdentitySummary, error)
	LoginCustomer(ctx context.Context, in CustomerLoginInput) (*LoginResult, error)
	LoginEmployee(ctx context.Context, in EmployeeLoginInput) (*LoginResult, error)
	VerifyToken(ctx context.Context, token string) (*domain.TokenClaims, error)
	CustomerProfile(ctx context.Context, id string) (*CustomerProfile, error)
	EmployeeProfile(ctx context.Context, id string) (*EmployeeProfile, error)
}

// Principal is the identity context of one request. Claims come from the
// verified token; Identity and Role are filled once loaded so later checks in
// the same request reuse them.
type Principal struct {
	Claims   *domain.TokenClaims
	Identity *domain.Identity
	Role     *domain.Role
}

// Requirement is what a protected operation demands. An empty Kind accepts
// either account kind; an empty Permission only checks account state.
type Requirement struct {
	Kind       domain.AccountKind
	Permission domain.Permission
}

// AuthorizationGate decides capability on top of an authenticated principal.
type AuthorizationGate interface {
	Require(ctx context.Context, p *Principal, req Requirement) (domain.Decision, error)
}

// InputValidator checks registration input formats and password strength.
type InputValidator interface {
	ValidateRegistration(in RegisterCustomerInput) error
}
