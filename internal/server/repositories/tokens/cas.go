package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// DefaultMaxRetries bounds compare-and-swap attempts when the caller does
// not configure it.
const DefaultMaxRetries = 5

const (
	casBaseDelay     = 2 * time.Millisecond
	casMaxDelay      = 50 * time.Millisecond
	casJitterPercent = 50
)

// casBackoff is swapped by tests to avoid sleeping.
var casBackoff = func(maxRetries int) retry.Backoff {
	b := retry.NewExponential(casBaseDelay)
	b = retry.WithCappedDuration(casMaxDelay, b)
	b = retry.WithJitterPercent(casJitterPercent, b)
	return retry.WithMaxRetries(uint64(maxRetries-1), b)
}

// casStore is what a backend provides to run an optimistic update.
type casStore interface {
	// load returns the current record or common.ErrorNotFound.
	load(ctx context.Context, id string) (*models.Token, error)
	// swap writes next when the stored version still equals prev and
	// reports common.ErrVersionConflict otherwise.
	swap(ctx context.Context, prev int64, next *models.Token) error
}

// casUpdate runs read, clone, mutate, conditional write until a write lands,
// mutate fails or the retry budget is spent.
func casUpdate(ctx context.Context, s casStore, maxRetries int, id string, mutate MutateFunc) (*models.Token, error) {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}

	var result *models.Token

	err := retry.Do(ctx, casBackoff(maxRetries), func(ctx context.Context) error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.Version = current.Version + 1

		if err := s.swap(ctx, current.Version, next); err != nil {
			if errors.Is(err, common.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}

		result = next
		return nil
	})

	if errors.Is(err, common.ErrVersionConflict) {
		return nil, common.ErrConcurrencyConflict
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
