package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// ListFilter narrows List results. Zero values match everything; Limit 0
// means no limit.
type ListFilter struct {
	Status        models.Status
	Name          string
	IssuedAfter   *time.Time
	IssuedBefore  *time.Time
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
	Limit         int
	Offset        int
}

func (f ListFilter) validate() error {
	if f.Limit < 0 || f.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must not be negative", common.ErrInvalidRequest)
	}
	if f.Status != "" {
		if _, ok := models.ParseStatus(string(f.Status)); !ok {
			return fmt.Errorf("%w: unknown status %q", common.ErrInvalidRequest, f.Status)
		}
	}
	return nil
}

func (f ListFilter) match(t *models.Token, status models.Status) bool {
	switch {
	case f.Status != "" && f.Status != status:
		return false
	case f.Name != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(f.Name)):
		return false
	case f.IssuedAfter != nil && !t.IssuedAt.After(*f.IssuedAfter):
		return false
	case f.IssuedBefore != nil && !t.IssuedAt.Before(*f.IssuedBefore):
		return false
	case f.ExpiresAfter != nil && !t.ExpiresAt.After(*f.ExpiresAfter):
		return false
	case f.ExpiresBefore != nil && !t.ExpiresAt.Before(*f.ExpiresBefore):
		return false
	}
	return true
}

// List returns callerOwnerID's tokens, most recent first, with the effective
// status folded in.
func (s *TokenService) List(ctx context.Context, callerOwnerID string, filter ListFilter) (out []TokenSummary, err error) {
	defer s.observe("list", time.Now(), &err)

	if err := filter.validate(); err != nil {
		return nil, err
	}

	records, err := s.repo().ListByOwner(ctx, callerOwnerID)
	if err != nil {
		return nil, fmt.Errorf("error listing tokens: %w", err)
	}

	now := s.now()
	out = make([]TokenSummary, 0, len(records))
	skipped := 0
	for _, t := range records {
		if t.OwnerID != callerOwnerID {
			continue
		}
		status := t.EffectiveStatus(now)
		if !filter.match(t, status) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, summarize(t, status))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func summarize(t *models.Token, status models.Status) TokenSummary {
	return TokenSummary{
		TokenID:          t.ID,
		Name:             t.Name,
		Status:           status,
		IssuedAt:         t.IssuedAt,
		ExpiresAt:        t.ExpiresAt,
		RevokedAt:        t.RevokedAt,
		RevocationReason: t.RevocationReason,
		Audience:         t.Audience,
	}
}
