package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/api/metrics"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

// EmployeeHandler handles employee login and profile. Employees are
// pre-provisioned; there is no self-registration.
type EmployeeHandler struct {
	authService ports.AuthService
}

func NewEmployeeHandler(authService ports.AuthService) *EmployeeHandler {
	return &EmployeeHandler{authService: authService}
}

// Login authenticates an employee by username or employee id.
//
// @Summary      Employee login
// @Tags         employee
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                false  "Marks retries of the same attempt"
// @Param        body             body      employeeLoginRequest  true   "Login credentials"
// @Success      200              {object}  loginResponse
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      403              {object}  errorResponse
// @Failure      423              {object}  errorResponse
// @Router       /api/employee/login [post]
func (h *EmployeeHandler) Login(c echo.Context) error {
	start := time.Now()
	var req employeeLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(string(domain.KindEmployee), "bad_request").Inc()
		return err
	}

	login := req.Username
	if login == "" {
		login = req.EmployeeID
	}
	res, err := h.authService.LoginEmployee(c.Request().Context(), ports.EmployeeLoginInput{
		Login:      login,
		Password:   req.Password,
		AttemptKey: attemptKey(c),
	})
	return renderLogin(c, domain.KindEmployee, start, res, err)
}

// Profile returns the authenticated employee's profile and permissions.
//
// @Summary      Employee profile
// @Tags         employee
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  employeeProfileResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /api/employee/profile [get]
func (h *EmployeeHandler) Profile(c echo.Context) error {
	p, err := ctxPrincipal(c, domain.KindEmployee)
	if err != nil {
		return err
	}

	profile, err := h.authService.EmployeeProfile(c.Request().Context(), p.Claims.SubjectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, employeeProfileResponse{
		identityView: toIdentityView(&profile.IdentitySummary),
		IsActive:     profile.IsActive,
	})
}
