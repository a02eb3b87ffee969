// Package tokens declares the token store contract and its PostgreSQL and
// in-memory implementations.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// MutateFunc edits a private copy of a record inside Update. Returning an
// error aborts the update without writing.
type MutateFunc func(t *models.Token) error

// Repository persists token records.
//
// Create fails with common.ErrDuplicateTokenID when the id exists.
// Get and Update fail with common.ErrorNotFound for unknown ids.
// Update applies mutate with optimistic concurrency on Version and retries
// conflicts; when retries run out common.ErrConcurrencyConflict is returned.
// ListByOwner orders by issued_at DESC, token_id ASC.
// MarkExpired flips active records whose expiry has passed to expired and
// returns the flipped records.
type Repository interface {
	Create(ctx context.Context, t *models.Token) error
	Get(ctx context.Context, id string) (*models.Token, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Token, error)
	Update(ctx context.Context, id string, mutate MutateFunc) (*models.Token, error)
	MarkExpired(ctx context.Context, now time.Time) ([]*models.Token, error)
}
