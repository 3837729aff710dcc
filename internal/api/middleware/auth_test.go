package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

type stubTokens struct {
	claims *domain.TokenClaims
	err    error
	got    string
}

func (s *stubTokens) Issue(domain.TokenClaims) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not used")
}

func (s *stubTokens) Verify(token string) (*domain.TokenClaims, error) {
	s.got = token
	return s.claims, s.err
}

func newAuthContext(header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tokens := &stubTokens{claims: &domain.TokenClaims{SubjectID: "c1", AccountKind: domain.KindCustomer, Username: "alice01"}}
	c, rec := newAuthContext("Bearer signed.jwt.value")

	called := false
	handler := Auth(tokens)(func(c echo.Context) error {
		called = true
		p := PrincipalFrom(c)
		if p == nil || p.Claims.SubjectID != "c1" {
			t.Fatalf("principal not set: %+v", p)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if tokens.got != "signed.jwt.value" {
		t.Fatalf("unexpected token passed to verifier: %q", tokens.got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		c, _ := newAuthContext(header)
		handler := Auth(&stubTokens{})(func(c echo.Context) error {
			t.Fatalf("should not reach next")
			return nil
		})
		if err := handler(c); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("%q: expected ErrUnauthenticated, got %v", header, err)
		}
	}
}

func TestAuthMiddleware_ExpiredAndInvalidStayDistinct(t *testing.T) {
	for _, want := range []error{domain.ErrTokenExpired, domain.ErrTokenInvalid} {
		c, _ := newAuthContext("Bearer x")
		handler := Auth(&stubTokens{err: want})(func(c echo.Context) error {
			t.Fatalf("should not reach next")
			return nil
		})
		if err := handler(c); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}

func TestPrincipalFrom_Missing(t *testing.T) {
	c, _ := newAuthContext("")
	if PrincipalFrom(c) != nil {
		t.Fatalf("expected nil principal")
	}
	WithPrincipal(c, &ports.Principal{})
	if PrincipalFrom(c) == nil {
		t.Fatalf("expected principal after WithPrincipal")
	}
}
