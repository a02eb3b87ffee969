package services

import (
	"context"
	"slices"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// ValidationResult is the introspection view of a token.
type ValidationResult struct {
	Valid     bool
	Active    bool
	Message   string
	Subject   string
	Issuer    string
	Audience  []string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Claims    models.Claims
	// Err is the failure behind Message, nil when Valid.
	Err error
}

// Validate introspects a token: it must pass Authorize and, when given,
// carry expectedAudience and expectedIssuer. It never returns an error for
// a bad token; the verdict is in the result.
func (s *TokenService) Validate(ctx context.Context, presented, expectedAudience, expectedIssuer string) *ValidationResult {
	start := time.Now()

	payload, rec, err := s.authorize(ctx, presented)
	if err != nil {
		s.observer.ObserveOperation("validate", err, time.Since(start))
		return &ValidationResult{Message: err.Error(), Err: err}
	}

	res := &ValidationResult{
		Active:    true,
		Subject:   rec.OwnerID,
		Issuer:    payload.Issuer,
		Audience:  payload.Audience,
		TokenID:   rec.ID,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
		Claims:    payload.Claims,
	}

	switch {
	case expectedAudience != "" && !slices.Contains(payload.Audience, expectedAudience):
		res.Err = errAudienceMismatch
	case expectedIssuer != "" && payload.Issuer != expectedIssuer:
		res.Err = errIssuerMismatch
	}
	if res.Err != nil {
		res.Message = res.Err.Error()
	} else {
		res.Valid = true
		res.Message = "token is valid"
	}

	s.observer.ObserveOperation("validate", res.Err, time.Since(start))
	return res
}
