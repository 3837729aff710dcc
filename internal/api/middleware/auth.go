package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/api/metrics"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

const principalKey = "principal"

// Auth verifies the bearer token and attaches a *ports.Principal to the context.
func Auth(tokens ports.TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				metrics.TokenFailuresTotal.WithLabelValues("missing").Inc()
				return domain.ErrUnauthenticated
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, domain.ErrTokenExpired) {
					reason = "expired"
				}
				metrics.TokenFailuresTotal.WithLabelValues(reason).Inc()
				return err
			}

			c.Set(principalKey, &ports.Principal{Claims: claims})
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal attached by Auth, or nil.
func PrincipalFrom(c echo.Context) *ports.Principal {
	p, _ := c.Get(principalKey).(*ports.Principal)
	return p
}

// WithPrincipal attaches p to the context. Used by tests and internal callers.
func WithPrincipal(c echo.Context, p *ports.Principal) {
	c.Set(principalKey, p)
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
