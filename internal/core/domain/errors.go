package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked")
	ErrDeactivated        = errors.New("account is deactivated")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrIntegrity          = errors.New("encrypted data failed integrity check")
	ErrTransient          = errors.New("temporary failure, retry later")

	ErrUnauthenticated  = errors.New("authentication required")
	ErrWrongAccountKind = errors.New("wrong account kind")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrForbidden        = errors.New("access forbidden")
	ErrRoleNotFound     = errors.New("role not found")
	ErrLockoutConflict  = errors.New("lockout state changed concurrently")
	ErrMissingKey       = errors.New("no key material configured")
)

// ErrorKind is the stable, machine-distinguishable name of a failure.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindConflict           ErrorKind = "conflict"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindAccountLocked      ErrorKind = "account_locked"
	KindDeactivated        ErrorKind = "deactivated"
	KindTokenExpired       ErrorKind = "token_expired"
	KindTokenInvalid       ErrorKind = "token_invalid"
	KindIntegrity          ErrorKind = "integrity_error"
	KindTransient          ErrorKind = "transient_error"
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindWrongAccountKind   ErrorKind = "wrong_account_kind"
	KindNotFound           ErrorKind = "not_found"
	KindForbidden          ErrorKind = "forbidden"
	KindInternal           ErrorKind = "internal"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrValidation, KindValidation},
	{ErrConflict, KindConflict},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrAccountLocked, KindAccountLocked},
	{ErrDeactivated, KindDeactivated},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenInvalid, KindTokenInvalid},
	{ErrIntegrity, KindIntegrity},
	{ErrTransient, KindTransient},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrWrongAccountKind, KindWrongAccountKind},
	{ErrIdentityNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// UserVisible reports whether errors of this kind may be shown verbatim to end users.
func (k ErrorKind) UserVisible() bool {
	switch k {
	case KindValidation, KindConflict, KindInvalidCredentials, KindAccountLocked, KindDeactivated:
		return true
	}
	return false
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field. Feedback carries password
// strength hints when the secret was too weak.
type ValidationError struct {
	Fields   []FieldError `json:"errors,omitempty"`
	Feedback []string     `json:"feedback,omitempty"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields)+len(e.Feedback))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	parts = append(parts, e.Feedback...)
	if len(parts) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one problem.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 && len(e.Feedback) == 0 {
		return nil
	}
	return e
}

// ConflictError reports a uniqueness violation on Field.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return ErrConflict.Error()
	}
	return e.Field + " " + ErrConflict.Error()
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// LockedError carries the remaining lock time, which is safe to disclose.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s, try again in %d minutes", ErrAccountLocked, RemainingMinutes(e.Remaining))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// CredentialsError is the deliberately vague login failure. It never says
// which factor was wrong.
type CredentialsError struct {
	RemainingAttempts *uint
}

func (e *CredentialsError) Error() string { return ErrInvalidCredentials.Error() }

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }
