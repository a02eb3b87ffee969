package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/tokens"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Emit(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type mapDenylist struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (d *mapDenylist) Add(id string, exp time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[id] = exp
}

func (d *mapDenylist) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.m[id]
	return ok
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *recordingObserver) ObserveOperation(op string, _ error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}

type fixture struct {
	svc      *TokenService
	clock    *fakeClock
	sink     *recordingSink
	denylist *mapDenylist
	codec    *auth.Codec
	rm       repomanager.RepositoryManager
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorageBackend = config.StorageMemory
	for _, m := range mutate {
		m(cfg)
	}

	codec, err := auth.NewCodec([]byte("test-secret"), "k1")
	require.NoError(t, err)

	f := &fixture{
		clock:    &fakeClock{now: t0},
		sink:     &recordingSink{},
		denylist: &mapDenylist{m: map[string]time.Time{}},
		codec:    codec,
		rm:       repomanager.NewMemoryRepositoryManager(100),
	}
	f.svc = NewTokenService(nil, f.rm, codec, cfg,
		WithClock(f.clock.Now),
		WithEventSink(f.sink),
		WithDenylist(f.denylist),
	)
	return f
}

func (f *fixture) generate(t *testing.T, owner string, minutes int) *GenerateResult {
	t.Helper()
	res, err := f.svc.Generate(context.Background(), GenerateRequest{
		OwnerID:           owner,
		Name:              "token-of-" + owner,
		Claims:            map[string]any{"role": "user"},
		ExpirationMinutes: minutes,
	})
	require.NoError(t, err)
	return res
}

// errRepo fails every call with err.
type errRepo struct{ err error }

func (r *errRepo) Create(context.Context, *models.Token) error { return r.err }
func (r *errRepo) Get(context.Context, string) (*models.Token, error) {
	return nil, r.err
}
func (r *errRepo) ListByOwner(context.Context, string) ([]*models.Token, error) {
	return nil, r.err
}
func (r *errRepo) Update(context.Context, string, tokens.MutateFunc) (*models.Token, error) {
	return nil, r.err
}
func (r *errRepo) MarkExpired(context.Context, time.Time) ([]*models.Token, error) {
	return nil, r.err
}

type stubManager struct{ repo tokens.Repository }

func (m *stubManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *stubManager) Tokens(dbx.DBTX) tokens.Repository            { return m.repo }
