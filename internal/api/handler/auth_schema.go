package handler

import (
	"time"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// errorResponse documents the error envelope rendered by the API error handler.
type errorResponse struct {
	Error             string              `json:"error"`
	Code              string              `json:"code"`
	Errors            []domain.FieldError `json:"errors,omitempty"`
	Feedback          []string            `json:"feedback,omitempty"`
	RemainingAttempts *uint               `json:"remaining_attempts,omitempty"`
	RemainingMinutes  *int                `json:"remaining_minutes,omitempty"`
}

// --- Request / Response types ---

type registerRequest struct {
	FullName      string `json:"full_name"`
	IDNumber      string `json:"id_number"`
	AccountNumber string `json:"account_number"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

type customerLoginRequest struct {
	Username      string `json:"username"       validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
	Password      string `json:"password"       validate:"required"`
}

type employeeLoginRequest struct {
	Username   string `json:"username"    validate:"required_without=EmployeeID"`
	EmployeeID string `json:"employee_id" validate:"required_without=Username"`
	Password   string `json:"password"    validate:"required"`
}

type authorizeRequest struct {
	Permission string `json:"permission" validate:"required,permission"`
	UserType   string `json:"user_type"  validate:"omitempty,oneof=customer employee"`
}

type identityView struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	UserType    string     `json:"user_type"`
	FullName    string     `json:"full_name"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    identityView `json:"user"`
}

type loginResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      identityView `json:"user"`
}

type customerProfileResponse struct {
	identityView
	AccountNumber string `json:"account_number"`
	IsActive      bool   `json:"is_active"`
}

type employeeProfileResponse struct {
	identityView
	IsActive bool `json:"is_active"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type verifyResponse struct {
	Valid       bool              `json:"valid"`
	UserID      string            `json:"user_id"`
	Username    string            `json:"username"`
	ExternalID  string            `json:"external_id,omitempty"`
	Role        string            `json:"role"`
	UserType    string            `json:"user_type"`
	Permissions []string          `json:"permissions,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

type authorizeResponse struct {
	Allowed    bool   `json:"allowed"`
	Permission string `json:"permission"`
}
