package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/swiftportal/payments-portal/internal/api/metrics"
	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error             string              `json:"error"`
	Code              string              `json:"code"`
	Fields            []domain.FieldError `json:"errors,omitempty"`
	Feedback          []string            `json:"feedback,omitempty"`
	RemainingAttempts *uint               `json:"remaining_attempts,omitempty"`
	RemainingMinutes  *int                `json:"remaining_minutes,omitempty"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:         http.StatusBadRequest,
	domain.KindConflict:           http.StatusConflict,
	domain.KindInvalidCredentials: http.StatusUnauthorized,
	domain.KindAccountLocked:      http.StatusLocked,
	domain.KindDeactivated:        http.StatusForbidden,
	domain.KindTokenExpired:       http.StatusUnauthorized,
	domain.KindTokenInvalid:       http.StatusUnauthorized,
	domain.KindUnauthenticated:    http.StatusUnauthorized,
	domain.KindWrongAccountKind:   http.StatusForbidden,
	domain.KindForbidden:          http.StatusForbidden,
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindTransient:          http.StatusServiceUnavailable,
	domain.KindIntegrity:          http.StatusInternalServerError,
	domain.KindInternal:           http.StatusInternalServerError,
}

// Messages for kinds whose details stay internal.
var genericMessage = map[domain.ErrorKind]string{
	domain.KindTokenExpired:     "session expired, please log in again",
	domain.KindTokenInvalid:     "authentication required",
	domain.KindUnauthenticated:  "authentication required",
	domain.KindWrongAccountKind: "access denied",
	domain.KindForbidden:        "access denied",
	domain.KindNotFound:         "access denied",
	domain.KindTransient:        "service temporarily unavailable, please retry",
	domain.KindIntegrity:        "internal server error",
	domain.KindInternal:         "internal server error",
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain error kinds to their HTTP status codes.
//   - Shows only user-visible kinds verbatim; the rest get a generic message.
//   - Logs server-side failures without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<kind>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: codeForStatus(he.Code)}
	}

	kind := domain.KindOf(err)
	status := kindStatus[kind]
	body := errorResponse{Code: string(kind)}
	if kind.UserVisible() {
		body.Error = err.Error()
	} else {
		body.Error = genericMessage[kind]
	}

	var (
		ve     *domain.ValidationError
		ce     *domain.ConflictError
		locked *domain.LockedError
		creds  *domain.CredentialsError
	)
	switch {
	case errors.As(err, &ve):
		body.Error = domain.ErrValidation.Error()
		body.Fields = ve.Fields
		body.Feedback = ve.Feedback
	case errors.As(err, &ce):
		body.Error = ce.Error()
	case errors.As(err, &locked):
		mins := domain.RemainingMinutes(locked.Remaining)
		body.Error = locked.Error()
		body.RemainingMinutes = &mins
	case errors.As(err, &creds):
		body.Error = domain.ErrInvalidCredentials.Error()
		body.RemainingAttempts = creds.RemainingAttempts
	}

	if status >= http.StatusInternalServerError {
		if kind == domain.KindIntegrity {
			metrics.IntegrityFailuresTotal.Inc()
		}
		log.Error().
			Err(err).
			Str("code", string(kind)).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("request failed")
	}
	return status, body
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(domain.KindValidation)
	case http.StatusUnauthorized:
		return string(domain.KindUnauthenticated)
	case http.StatusForbidden:
		return string(domain.KindForbidden)
	case http.StatusNotFound:
		return string(domain.KindNotFound)
	case http.StatusServiceUnavailable:
		return string(domain.KindTransient)
	}
	if status >= http.StatusInternalServerError {
		return string(domain.KindInternal)
	}
	return "request_error"
}
