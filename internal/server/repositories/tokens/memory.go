package tokens

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// MemoryRepository keeps records in process memory. Records are cloned on
// the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.Token
	byOwner    map[string]map[string]struct{}
	maxRetries int
}

// NewMemoryRepository returns an empty store.
func NewMemoryRepository(maxRetries int) *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*models.Token),
		byOwner:    make(map[string]map[string]struct{}),
		maxRetries: maxRetries,
	}
}

// Create stores a copy of t with version 1.
func (r *MemoryRepository) Create(_ context.Context, t *models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[t.ID]; ok {
		return common.ErrDuplicateTokenID
	}
	t.Version = 1
	r.byID[t.ID] = t.Clone()

	ids, ok := r.byOwner[t.OwnerID]
	if !ok {
		ids = make(map[string]struct{})
		r.byOwner[t.OwnerID] = ids
	}
	ids[t.ID] = struct{}{}
	return nil
}

// Get returns a copy of the record.
func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t.Clone(), nil
}

// ListByOwner returns copies of ownerID's records, most recent first.
func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*models.Token, error) {
	r.mu.RLock()
	out := make([]*models.Token, 0, len(r.byOwner[ownerID]))
	for id := range r.byOwner[ownerID] {
		out = append(out, r.byID[id].Clone())
	}
	r.mu.RUnlock()

	sortRecent(out)
	return out, nil
}

// Update applies mutate under optimistic concurrency.
func (r *MemoryRepository) Update(ctx context.Context, id string, mutate MutateFunc) (*models.Token, error) {
	return casUpdate(ctx, r, r.maxRetries, id, mutate)
}

func (r *MemoryRepository) load(ctx context.Context, id string) (*models.Token, error) {
	return r.Get(ctx, id)
}

func (r *MemoryRepository) swap(_ context.Context, prev int64, next *models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[next.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if cur.Version != prev {
		return common.ErrVersionConflict
	}
	r.byID[next.ID] = next.Clone()
	return nil
}

// MarkExpired flips overdue active records to expired.
func (r *MemoryRepository) MarkExpired(_ context.Context, now time.Time) ([]*models.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Token, 0)
	for _, t := range r.byID {
		if t.Status != models.StatusActive || now.Before(t.ExpiresAt) {
			continue
		}
		t.Status = models.StatusExpired
		t.Version++
		out = append(out, t.Clone())
	}
	sortRecent(out)
	return out, nil
}

func sortRecent(ts []*models.Token) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].IssuedAt.Equal(ts[j].IssuedAt) {
			return ts[i].IssuedAt.After(ts[j].IssuedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
