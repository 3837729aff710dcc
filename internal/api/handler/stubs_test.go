package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
	"github.com/swiftportal/payments-portal/internal/pkg/validation"
)

type stubAuthService struct {
	registerFn        func(ctx context.Context, in ports.RegisterCustomerInput) (*ports.IdentitySummary, error)
	loginCustomerFn   func(ctx context.Context, in ports.CustomerLoginInput) (*ports.LoginResult, error)
	loginEmployeeFn   func(ctx context.Context, in ports.EmployeeLoginInput) (*ports.LoginResult, error)
	verifyFn          func(ctx context.Context, token string) (*domain.TokenClaims, error)
	customerProfileFn func(ctx context.Context, id string) (*ports.CustomerProfile, error)
	employeeProfileFn func(ctx context.Context, id string) (*ports.EmployeeProfile, error)
}

func (s *stubAuthService) RegisterCustomer(ctx context.Context, in ports.RegisterCustomerInput) (*ports.IdentitySummary, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) LoginCustomer(ctx context.Context, in ports.CustomerLoginInput) (*ports.LoginResult, error) {
	return s.loginCustomerFn(ctx, in)
}

func (s *stubAuthService) LoginEmployee(ctx context.Context, in ports.EmployeeLoginInput) (*ports.LoginResult, error) {
	return s.loginEmployeeFn(ctx, in)
}

func (s *stubAuthService) VerifyToken(ctx context.Context, token string) (*domain.TokenClaims, error) {
	return s.verifyFn(ctx, token)
}

func (s *stubAuthService) CustomerProfile(ctx context.Context, id string) (*ports.CustomerProfile, error) {
	return s.customerProfileFn(ctx, id)
}

func (s *stubAuthService) EmployeeProfile(ctx context.Context, id string) (*ports.EmployeeProfile, error) {
	return s.employeeProfileFn(ctx, id)
}

type stubGate struct {
	decision domain.Decision
	err      error
	got      ports.Requirement
}

func (g *stubGate) Require(_ context.Context, _ *ports.Principal, req ports.Requirement) (domain.Decision, error) {
	g.got = req
	return g.decision, g.err
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator(validation.New())
	return e
}

func jsonContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return newEcho().NewContext(req, rec), rec
}

func aliceSummary() *ports.IdentitySummary {
	return &ports.IdentitySummary{
		ID:          "c1",
		Kind:        domain.KindCustomer,
		ExternalID:  "CUST0001",
		DisplayName: "Alice Smith",
		Username:    "alice01",
		Role:        domain.RoleCustomer,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func uintPtr(v uint) *uint { return &v }
