package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// DefaultTokenTTL keeps bearer tokens short-lived.
const DefaultTokenTTL = time.Hour

// TokenConfig configures the JWT manager.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type portalClaims struct {
	jwt.RegisteredClaims
	Username    string            `json:"username"`
	ExternalID  string            `json:"external_id,omitempty"`
	Role        string            `json:"role"`
	UserType    string            `json:"userType"`
	Permissions []string          `json:"permissions,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// JWTManager signs HS256 tokens with a process-wide secret.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTManager fails when no signing secret is configured.
func NewJWTManager(cfg TokenConfig) (*JWTManager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt manager: %w", domain.ErrMissingKey)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTManager{secret: []byte(cfg.Secret), ttl: ttl, issuer: cfg.Issuer, now: time.Now}, nil
}

// TTL returns the configured token lifetime.
func (m *JWTManager) TTL() time.Duration { return m.ttl }

// Issue signs the claims. IssuedAt, ExpiresAt and TokenID are assigned here.
func (m *JWTManager) Issue(c domain.TokenClaims) (string, time.Time, error) {
	if c.SubjectID == "" || !c.AccountKind.Valid() || c.RoleName == "" {
		return "", time.Time{}, fmt.Errorf("issue token: incomplete claims")
	}
	now := m.now().UTC()
	exp := now.Add(m.ttl)

	claims := portalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   c.SubjectID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username:    c.Username,
		ExternalID:  c.ExternalID,
		Role:        string(c.RoleName),
		UserType:    string(c.AccountKind),
		Permissions: c.Permissions,
		Extra:       c.Extra,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm and expiry.
func (m *JWTManager) Verify(token string) (*domain.TokenClaims, error) {
	claims := &portalClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	kind := domain.AccountKind(claims.UserType)
	if claims.Subject == "" || !kind.Valid() {
		return nil, fmt.Errorf("%w: missing identity claims", domain.ErrTokenInvalid)
	}

	out := &domain.TokenClaims{
		SubjectID:   claims.Subject,
		Username:    claims.Username,
		ExternalID:  claims.ExternalID,
		RoleName:    domain.RoleName(claims.Role),
		AccountKind: kind,
		Permissions: claims.Permissions,
		Extra:       claims.Extra,
		TokenID:     claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
