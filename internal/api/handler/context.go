package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/api/middleware"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

const headerIdempotencyKey = "Idempotency-Key"

// ctxPrincipal extracts the principal attached by the Auth middleware and
// fails fast when the middleware did not run or the token is of another kind.
func ctxPrincipal(c echo.Context, kind domain.AccountKind) (*ports.Principal, error) {
	p := middleware.PrincipalFrom(c)
	if p == nil || p.Claims == nil || p.Claims.SubjectID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if kind != "" && p.Claims.AccountKind != kind {
		return nil, domain.ErrWrongAccountKind
	}
	return p, nil
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

// attemptKey lets clients that retry a login mark the retry as the same attempt.
func attemptKey(c echo.Context) string {
	return c.Request().Header.Get(headerIdempotencyKey)
}
