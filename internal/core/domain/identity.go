package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AccountKind distinguishes the two identity variants.
type AccountKind string

const (
	KindCustomer AccountKind = "customer"
	KindEmployee AccountKind = "employee"
)

// Valid reports whether k is one of the known account kinds.
func (k AccountKind) Valid() bool {
	return k == KindCustomer || k == KindEmployee
}

// ExternalIDPrefix returns the human-facing identifier prefix for the kind.
func (k AccountKind) ExternalIDPrefix() string {
	if k == KindEmployee {
		return "EMP"
	}
	return "CUST"
}

// IdentityRef addresses a single identity across both collections.
type IdentityRef struct {
	Kind AccountKind
	ID   string
}

func (r IdentityRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Identity is the state shared by customers and employees.
type Identity struct {
	ID          string       `json:"id"`
	Kind        AccountKind  `json:"kind"`
	ExternalID  string       `json:"external_id"`
	DisplayName string       `json:"display_name"`
	Username    string       `json:"username"`
	SecretHash  string       `json:"-"`
	RoleID      string       `json:"role_id"`
	IsActive    bool         `json:"is_active"`
	Lockout     LockoutState `json:"-"`
	LastLoginAt *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Ref returns the addressing key for the identity.
func (i *Identity) Ref() IdentityRef {
	return IdentityRef{Kind: i.Kind, ID: i.ID}
}

// Customer adds the encrypted banking fields. Only ciphertext is held here;
// the blind indexes are keyed digests used for uniqueness checks.
type Customer struct {
	Identity

	NationalIDCipher    string `json:"-"`
	NationalIDIndex     string `json:"-"`
	AccountNumberCipher string `json:"-"`
	AccountNumberIndex  string `json:"-"`
}

const accountMask = "****"

// MaskAccountNumber keeps the last four digits and replaces the rest with a
// fixed-width mask, so the length of the original is not disclosed.
func MaskAccountNumber(plain string) string {
	if len(plain) <= 4 {
		return accountMask + plain
	}
	return accountMask + plain[len(plain)-4:]
}

// NextExternalID returns the identifier following last for the given kind.
// An empty last yields the first identifier (e.g. CUST0001).
func NextExternalID(kind AccountKind, last string) (string, error) {
	prefix := kind.ExternalIDPrefix()
	if last == "" {
		return fmt.Sprintf("%s%04d", prefix, 1), nil
	}
	upper := strings.ToUpper(last)
	if !strings.HasPrefix(upper, prefix) {
		return "", fmt.Errorf("external id %q: missing %s prefix", last, prefix)
	}
	n, err := strconv.Atoi(upper[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("external id %q: %w", last, err)
	}
	return fmt.Sprintf("%s%04d", prefix, n+1), nil
}
