package domain

import "time"

// AuthEventType names a security-relevant occurrence.
type AuthEventType string

const (
	EventLoginSucceeded     AuthEventType = "login_succeeded"
	EventLoginFailed        AuthEventType = "login_failed"
	EventLoginRejected      AuthEventType = "login_rejected"
	EventAccountLocked      AuthEventType = "account_locked"
	EventCustomerRegistered AuthEventType = "customer_registered"
	EventAccessDenied       AuthEventType = "access_denied"
)

// AuthEvent is one entry of the security audit trail. It never carries
// secrets or decrypted personal data.
type AuthEvent struct {
	ID         string
	Type       AuthEventType
	Kind       AccountKind
	IdentityID string // empty when the username did not resolve
	Username   string
	Reason     string
	RequestID  string
	OccurredAt time.Time
}

// ShardKey groups events of the same account for ordered processing.
func (e AuthEvent) ShardKey() string {
	if e.IdentityID != "" {
		return e.IdentityID
	}
	return string(e.Kind) + ":" + e.Username
}
