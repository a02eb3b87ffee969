package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// MaxBulkRevoke caps the ids accepted by one BulkRevoke call.
const MaxBulkRevoke = 100

// Bulk outcome states.
const (
	BulkRevoked        = "revoked"
	BulkAlreadyRevoked = "already_revoked"
	BulkFailed         = "failed"
)

// BulkRevokeOutcome is the result for one id.
type BulkRevokeOutcome struct {
	TokenID string
	Status  string
	Err     error
}

// BulkRevokeResult summarizes a BulkRevoke call.
type BulkRevokeResult struct {
	Outcomes       []BulkRevokeOutcome
	Revoked        int
	AlreadyRevoked int
	Failed         int
}

// BulkRevoke revokes each id independently; one failure does not stop the
// rest and nothing spans records. Duplicate ids are processed once.
func (s *TokenService) BulkRevoke(ctx context.Context, callerOwnerID string, ids []string, reason string) (res *BulkRevokeResult, err error) {
	defer s.observe("bulk_revoke", time.Now(), &err)

	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: no token ids", common.ErrInvalidRequest)
	}
	if len(unique) > MaxBulkRevoke {
		return nil, fmt.Errorf("%w: %d ids, at most %d allowed", common.ErrBulkLimitExceeded, len(unique), MaxBulkRevoke)
	}

	res = &BulkRevokeResult{Outcomes: make([]BulkRevokeOutcome, 0, len(unique))}
	for _, id := range unique {
		r, rerr := s.Revoke(ctx, callerOwnerID, id, reason)
		switch {
		case rerr != nil:
			res.Failed++
			res.Outcomes = append(res.Outcomes, BulkRevokeOutcome{TokenID: id, Status: BulkFailed, Err: rerr})
		case r.AlreadyRevoked:
			res.AlreadyRevoked++
			res.Outcomes = append(res.Outcomes, BulkRevokeOutcome{TokenID: id, Status: BulkAlreadyRevoked})
		default:
			res.Revoked++
			res.Outcomes = append(res.Outcomes, BulkRevokeOutcome{TokenID: id, Status: BulkRevoked})
		}
	}
	return res, nil
}
