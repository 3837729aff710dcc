package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/api/metrics"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

// AuthHandler serves token verification and the authorization probe used by
// the surrounding payment services.
type AuthHandler struct {
	authService ports.AuthService
	gate        ports.AuthorizationGate
}

func NewAuthHandler(authService ports.AuthService, gate ports.AuthorizationGate) *AuthHandler {
	return &AuthHandler{authService: authService, gate: gate}
}

// Verify checks the bearer token and returns its claims.
//
// @Summary      Verify a bearer token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  verifyResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/auth/verify [get]
func (h *AuthHandler) Verify(c echo.Context) error {
	claims, err := h.authService.VerifyToken(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toVerifyResponse(claims))
}

// Authorize reports whether the caller holds a permission.
//
// @Summary      Check a permission for the caller
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      authorizeRequest  true  "Permission to check"
// @Success      200   {object}  authorizeResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      423   {object}  errorResponse
// @Router       /api/auth/authorize [post]
func (h *AuthHandler) Authorize(c echo.Context) error {
	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := ctxPrincipal(c, "")
	if err != nil {
		return err
	}

	d, err := h.gate.Require(c.Request().Context(), p, ports.Requirement{
		Kind:       domain.AccountKind(req.UserType),
		Permission: domain.Permission(req.Permission),
	})
	if err != nil {
		return err
	}
	if !d.Allowed {
		metrics.GateDecisionsTotal.WithLabelValues(req.Permission, string(d.Reason)).Inc()
		return d.Err()
	}
	metrics.GateDecisionsTotal.WithLabelValues(req.Permission, "allow").Inc()
	return c.JSON(http.StatusOK, authorizeResponse{Allowed: true, Permission: req.Permission})
}

// Logout acknowledges the logout. Tokens are stateless and expire on their own;
// the client discards its copy.
//
// @Summary      Log out
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/customer/logout [post]
// @Router       /api/employee/logout [post]
func Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "logout successful"})
}

// renderLogin records login metrics and turns a non-success verdict into its
// domain error for the error handler.
func renderLogin(c echo.Context, kind domain.AccountKind, start time.Time, res *ports.LoginResult, err error) error {
	defer metrics.LoginDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(string(kind), "error").Inc()
		return err
	}
	metrics.LoginAttemptsTotal.WithLabelValues(string(kind), string(res.Verdict.Outcome)).Inc()
	if res.Verdict.JustLocked {
		metrics.LockoutsTotal.WithLabelValues(string(kind)).Inc()
	}
	if err := res.Verdict.Err(); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, loginResponse{
		Message:   "login successful",
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      toIdentityView(res.Identity),
	})
}
