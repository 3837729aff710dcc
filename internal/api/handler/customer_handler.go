package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/api/metrics"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

// CustomerHandler handles customer registration, login and profile.
type CustomerHandler struct {
	authService ports.AuthService
}

func NewCustomerHandler(authService ports.AuthService) *CustomerHandler {
	return &CustomerHandler{authService: authService}
}

// Register creates a new customer account.
//
// @Summary      Register a customer
// @Tags         customer
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Customer registration details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /api/customer/register [post]
func (h *CustomerHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	sum, err := h.authService.RegisterCustomer(c.Request().Context(), toRegisterInput(req, requestID(c)))
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, domain.ErrValidation):
			result = "validation_error"
		case errors.Is(err, domain.ErrConflict):
			result = "conflict"
		}
		metrics.RegistrationsTotal.WithLabelValues(result).Inc()
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	return c.JSON(http.StatusCreated, registerResponse{
		Message: "registration successful",
		User:    toIdentityView(sum),
	})
}

// Login authenticates a customer with username, account number and password.
//
// @Summary      Customer login
// @Tags         customer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                false  "Marks retries of the same attempt"
// @Param        body             body      customerLoginRequest  true   "Login credentials"
// @Success      200              {object}  loginResponse
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      403              {object}  errorResponse
// @Failure      423              {object}  errorResponse
// @Router       /api/customer/login [post]
func (h *CustomerHandler) Login(c echo.Context) error {
	start := time.Now()
	var req customerLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(string(domain.KindCustomer), "bad_request").Inc()
		return err
	}

	res, err := h.authService.LoginCustomer(c.Request().Context(), ports.CustomerLoginInput{
		Username:      req.Username,
		AccountNumber: req.AccountNumber,
		Password:      req.Password,
		AttemptKey:    attemptKey(c),
	})
	return renderLogin(c, domain.KindCustomer, start, res, err)
}

// Profile returns the authenticated customer's profile with a masked account number.
//
// @Summary      Customer profile
// @Tags         customer
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  customerProfileResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /api/customer/profile [get]
func (h *CustomerHandler) Profile(c echo.Context) error {
	p, err := ctxPrincipal(c, domain.KindCustomer)
	if err != nil {
		return err
	}

	profile, err := h.authService.CustomerProfile(c.Request().Context(), p.Claims.SubjectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, customerProfileResponse{
		identityView:  toIdentityView(&profile.IdentitySummary),
		AccountNumber: profile.MaskedAccountNumber,
		IsActive:      profile.IsActive,
	})
}
