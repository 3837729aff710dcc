package domain

import "time"

// TokenClaims is the identity carried by a bearer token.
type TokenClaims struct {
	SubjectID   string            `json:"sub"`
	Username    string            `json:"username"`
	ExternalID  string            `json:"external_id,omitempty"`
	RoleName    RoleName          `json:"role"`
	AccountKind AccountKind       `json:"user_type"`
	Permissions []string          `json:"permissions,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	TokenID     string            `json:"jti,omitempty"`
	IssuedAt    time.Time         `json:"iat"`
	ExpiresAt   time.Time         `json:"exp"`
}

// Ref returns the identity the token was issued for.
func (c *TokenClaims) Ref() IdentityRef {
	return IdentityRef{Kind: c.AccountKind, ID: c.SubjectID}
}
