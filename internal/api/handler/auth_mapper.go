package handler

import (
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

func toIdentityView(s *ports.IdentitySummary) identityView {
	return identityView{
		ID:          s.ID,
		ExternalID:  s.ExternalID,
		UserType:    string(s.Kind),
		FullName:    s.DisplayName,
		Username:    s.Username,
		Role:        string(s.Role),
		Permissions: s.Permissions,
		LastLogin:   s.LastLoginAt,
		CreatedAt:   s.CreatedAt,
	}
}

func toRegisterInput(req registerRequest, requestID string) ports.RegisterCustomerInput {
	return ports.RegisterCustomerInput{
		FullName:      req.FullName,
		NationalID:    req.IDNumber,
		AccountNumber: req.AccountNumber,
		Username:      req.Username,
		Password:      req.Password,
		RequestID:     requestID,
	}
}

func toVerifyResponse(c *domain.TokenClaims) verifyResponse {
	return verifyResponse{
		Valid:       true,
		UserID:      c.SubjectID,
		Username:    c.Username,
		ExternalID:  c.ExternalID,
		Role:        string(c.RoleName),
		UserType:    string(c.AccountKind),
		Permissions: c.Permissions,
		Extra:       c.Extra,
		ExpiresAt:   c.ExpiresAt,
	}
}
