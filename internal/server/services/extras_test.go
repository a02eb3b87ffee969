package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

func TestBulkRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.generate(t, "u1", 10)
	b := f.generate(t, "u1", 10)
	foreign := f.generate(t, "u2", 10)
	_, err := f.svc.Revoke(ctx, "u1", b.TokenID, "")
	require.NoError(t, err)

	res, err := f.svc.BulkRevoke(ctx, "u1", []string{a.TokenID, b.TokenID, foreign.TokenID, "missing", a.TokenID, ""}, "cleanup")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Revoked)
	assert.Equal(t, 1, res.AlreadyRevoked)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Outcomes, 4, "duplicates and blanks are dropped")

	assert.Equal(t, BulkRevoked, res.Outcomes[0].Status)
	assert.Equal(t, BulkAlreadyRevoked, res.Outcomes[1].Status)
	assert.Equal(t, BulkFailed, res.Outcomes[2].Status)
	assert.ErrorIs(t, res.Outcomes[2].Err, common.ErrForbidden)
	assert.ErrorIs(t, res.Outcomes[3].Err, common.ErrorNotFound)

	rec, err := f.rm.Tokens(nil).Get(ctx, foreign.TokenID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, rec.Status, "another owner's token is untouched")
}

func TestBulkRevoke_Limits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BulkRevoke(ctx, "u1", nil, "")
	require.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = f.svc.BulkRevoke(ctx, "u1", []string{"", ""}, "")
	require.ErrorIs(t, err, common.ErrInvalidRequest)

	ids := make([]string, MaxBulkRevoke+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	_, err = f.svc.BulkRevoke(ctx, "u1", ids, "")
	require.ErrorIs(t, err, common.ErrBulkLimitExceeded)

	res, err := f.svc.BulkRevoke(ctx, "u1", ids[:MaxBulkRevoke], "")
	require.NoError(t, err)
	assert.Equal(t, MaxBulkRevoke, res.Failed)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.generate(t, "u1", 10)

	ok := f.svc.Validate(ctx, res.Token, "tokenkeeper-api", "tokenkeeper")
	assert.True(t, ok.Valid)
	assert.True(t, ok.Active)
	assert.NoError(t, ok.Err)
	assert.Equal(t, "u1", ok.Subject)
	assert.Equal(t, res.TokenID, ok.TokenID)
	assert.Equal(t, "user", ok.Claims["role"])
	assert.Equal(t, res.ExpiresAt, ok.ExpiresAt)

	wrongAud := f.svc.Validate(ctx, res.Token, "billing", "")
	assert.False(t, wrongAud.Valid)
	assert.True(t, wrongAud.Active)
	assert.Equal(t, "audience mismatch", wrongAud.Message)

	wrongIss := f.svc.Validate(ctx, res.Token, "", "someone")
	assert.False(t, wrongIss.Valid)
	assert.Equal(t, "issuer mismatch", wrongIss.Message)

	bad := f.svc.Validate(ctx, "garbage", "", "")
	assert.False(t, bad.Valid)
	assert.False(t, bad.Active)
	assert.ErrorIs(t, bad.Err, common.ErrMalformedToken)

	_, err := f.svc.Revoke(ctx, "u1", res.TokenID, "")
	require.NoError(t, err)
	revoked := f.svc.Validate(ctx, res.Token, "", "")
	assert.False(t, revoked.Valid)
	assert.ErrorIs(t, revoked.Err, common.ErrTokenRevoked)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short := f.generate(t, "u1", 1)
	f.generate(t, "u1", 60)
	revoked := f.generate(t, "u1", 1)
	_, err := f.svc.Revoke(ctx, "u1", revoked.TokenID, "")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := f.rm.Tokens(nil).Get(ctx, short.TokenID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, rec.Status)

	types := f.sink.types()
	assert.Equal(t, audit.EventExpired, types[len(types)-1])

	_, err = f.svc.Extend(ctx, "u1", short.TokenID, 5)
	require.ErrorIs(t, err, common.ErrAlreadyExpired)

	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunReconciler(t *testing.T) {
	f := newFixture(t)
	f.generate(t, "u1", 1)
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunReconciler(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		for _, typ := range f.sink.types() {
			if typ == audit.EventExpired {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}

	// disabled interval returns at once
	f.svc.RunReconciler(context.Background(), 0)
}

func TestSweepExpired_StoreError(t *testing.T) {
	f := newFixture(t)
	f.svc.repomanager = &stubManager{repo: &errRepo{err: errors.New("db down")}}

	_, err := f.svc.SweepExpired(context.Background())
	require.ErrorContains(t, err, "error marking expired tokens: db down")
}
