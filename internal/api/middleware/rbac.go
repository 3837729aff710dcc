package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/api/metrics"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

// Require runs the authorization gate for req. It must be chained after Auth.
// The identity and role loaded by the gate stay on the principal, so a second
// Require in the same request does not hit the store again.
func Require(gate ports.AuthorizationGate, req ports.Requirement) echo.MiddlewareFunc {
	perm := string(req.Permission)
	if perm == "" {
		perm = "none"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d, err := gate.Require(c.Request().Context(), PrincipalFrom(c), req)
			if err != nil {
				return err
			}
			if !d.Allowed {
				metrics.GateDecisionsTotal.WithLabelValues(perm, string(d.Reason)).Inc()
				return d.Err()
			}
			metrics.GateDecisionsTotal.WithLabelValues(perm, "allow").Inc()
			return next(c)
		}
	}
}

// RequireKind restricts a route to one account kind.
func RequireKind(gate ports.AuthorizationGate, kind domain.AccountKind) echo.MiddlewareFunc {
	return Require(gate, ports.Requirement{Kind: kind})
}

// RequirePermission restricts a route to identities whose role grants perm.
func RequirePermission(gate ports.AuthorizationGate, perm domain.Permission) echo.MiddlewareFunc {
	return Require(gate, ports.Requirement{Permission: perm})
}
