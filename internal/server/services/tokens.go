// Package services contains server-side business logic. This file implements
// TokenService, the token lifecycle engine: generation, authorization,
// owner-scoped listing, extension and revocation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/tokens"
)

const (
	claimSubject = "sub"

	// idAttempts bounds token id regeneration on a duplicate key.
	idAttempts = 3
)

// newTokenID is a seam for tests.
var newTokenID = common.NewTokenID

var (
	errAudienceMismatch = errors.New("audience mismatch")
	errIssuerMismatch   = errors.New("issuer mismatch")
)

// Denylist remembers revoked token ids. A miss must not be read as
// "not revoked".
type Denylist interface {
	Add(id string, expiresAt time.Time)
	Contains(id string) bool
}

// Observer is told about every lifecycle operation once it completes.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
}

// Principal is the caller identity bound by a successful Authorize.
type Principal struct {
	OwnerID   string
	TokenID   string
	ExpiresAt time.Time
}

// GenerateRequest carries the caller input of Generate.
type GenerateRequest struct {
	OwnerID           string
	Name              string
	Claims            models.Claims
	ExpirationMinutes int
	Audience          []string
}

// GenerateResult is returned by Generate.
type GenerateResult struct {
	TokenID   string
	Token     string
	Name      string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenSummary is the public projection of a record.
type TokenSummary struct {
	TokenID          string
	Name             string
	Status           models.Status
	IssuedAt         time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	RevocationReason string
	Audience         []string
}

// ExtendResult is returned by Extend.
type ExtendResult struct {
	TokenID   string
	Token     string
	ExpiresAt time.Time
}

// RevokeResult is returned by Revoke.
type RevokeResult struct {
	TokenID        string
	AlreadyRevoked bool
	RevokedAt      time.Time
}

// TokenService owns every lifecycle invariant. The store is the only shared
// mutable state; every write goes through Repository.Update.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec

	issuer             string
	defaultAudience    []string
	allowedAudiences   []string
	audienceValidation bool
	maxExpiration      time.Duration

	now      func() time.Time
	denylist Denylist
	events   audit.Sink
	log      logging.Logger
	observer Observer
}

// Option customizes a TokenService.
type Option func(*TokenService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// WithDenylist installs a revocation cache.
func WithDenylist(d Denylist) Option {
	return func(s *TokenService) { s.denylist = d }
}

// WithEventSink routes audit events to sink.
func WithEventSink(sink audit.Sink) Option {
	return func(s *TokenService) { s.events = sink }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *TokenService) { s.log = l.With("module", "tokens") }
}

// WithObserver reports operation outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(s *TokenService) { s.observer = o }
}

// NewTokenService constructs a TokenService using repositories and server config.
// db may be nil when the repository manager does not need one.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, codec *auth.Codec, cfg *config.Config, opts ...Option) *TokenService {
	s := &TokenService{
		db:                 db,
		repomanager:        m,
		codec:              codec,
		issuer:             cfg.Issuer,
		defaultAudience:    slices.Clone(cfg.DefaultAudience),
		allowedAudiences:   slices.Clone(cfg.AllowedAudiences),
		audienceValidation: cfg.AudienceValidation,
		maxExpiration:      cfg.MaxExpiration,
		now:                time.Now,
		denylist:           noDenylist{},
		events:             audit.Discard{},
		log:                logging.Nop(),
		observer:           noObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenService) repo() tokens.Repository {
	return s.repomanager.Tokens(s.db)
}

// clock returns the current time at the precision tokens carry.
func (s *TokenService) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *TokenService) observe(op string, start time.Time, err *error) {
	s.observer.ObserveOperation(op, *err, time.Since(start))
}

// checkDuration validates a minute count against (0, maxExpiration].
func (s *TokenService) checkDuration(minutes int) (time.Duration, error) {
	if minutes <= 0 {
		return 0, fmt.Errorf("%w: %d minutes is not positive", common.ErrInvalidDuration, minutes)
	}
	if int64(minutes) > int64(s.maxExpiration/time.Minute) {
		return 0, fmt.Errorf("%w: %d minutes exceeds the maximum of %s", common.ErrInvalidDuration, minutes, s.maxExpiration)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// resolveAudience applies the audience policy. With validation on, an empty
// request gets the default and every entry must be allow-listed (an empty
// allow-list admits anything). With it off, the request or the default is
// used as is.
func (s *TokenService) resolveAudience(requested []string) ([]string, error) {
	aud := make([]string, 0, len(requested))
	for _, a := range requested {
		a = strings.TrimSpace(a)
		if a != "" && !slices.Contains(aud, a) {
			aud = append(aud, a)
		}
	}
	if len(aud) == 0 {
		aud = slices.Clone(s.defaultAudience)
	}
	if !s.audienceValidation || len(s.allowedAudiences) == 0 {
		return aud, nil
	}
	for _, a := range aud {
		if !slices.Contains(s.allowedAudiences, a) {
			return nil, fmt.Errorf("%w: %q is not allowed", common.ErrInvalidAudience, a)
		}
	}
	return aud, nil
}

func (s *TokenService) payloadOf(t *models.Token) auth.Payload {
	return auth.Payload{
		TokenID:   t.ID,
		OwnerID:   t.OwnerID,
		Issuer:    t.Issuer,
		Audience:  t.Audience,
		IssuedAt:  t.IssuedAt,
		ExpiresAt: t.ExpiresAt,
		KeyID:     t.KeyID,
		Claims:    t.Claims,
	}
}

func (s *TokenService) emit(ctx context.Context, typ audit.EventType, t *models.Token, at time.Time) {
	s.events.Emit(ctx, audit.NewEvent(typ, t, at))
}

// Generate mints a new token and persists its active record.
func (s *TokenService) Generate(ctx context.Context, req GenerateRequest) (res *GenerateResult, err error) {
	defer s.observe("generate", time.Now(), &err)

	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", common.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrInvalidRequest)
	}
	ttl, err := s.checkDuration(req.ExpirationMinutes)
	if err != nil {
		return nil, err
	}

	claims := req.Claims.Clone()
	if claims == nil {
		claims = models.Claims{}
	}
	if err := auth.CheckClaims(claims, req.OwnerID); err != nil {
		return nil, err
	}
	claims[claimSubject] = req.OwnerID

	audience, err := s.resolveAudience(req.Audience)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	rec := &models.Token{
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Claims:    claims,
		Issuer:    s.issuer,
		Audience:  audience,
		KeyID:     s.codec.KeyID(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Status:    models.StatusActive,
	}

	repo := s.repo()
	var signed string
	for attempt := 1; ; attempt++ {
		if rec.ID, err = newTokenID(); err != nil {
			return nil, fmt.Errorf("generate token id: %w", err)
		}
		if signed, err = s.codec.Encode(s.payloadOf(rec)); err != nil {
			return nil, err
		}
		err = repo.Create(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, common.ErrDuplicateTokenID) || attempt == idAttempts {
			return nil, fmt.Errorf("error creating token: %w", err)
		}
		s.log.Warn(ctx, "token id collision, regenerating", "token_id", rec.ID)
	}

	s.log.Info(ctx, "token generated", "token_id", rec.ID, "owner_id", rec.OwnerID, "expires_at", rec.ExpiresAt)
	s.emit(ctx, audit.EventGenerated, rec, now)

	return &GenerateResult{
		TokenID:   rec.ID,
		Token:     signed,
		Name:      rec.Name,
		Audience:  rec.Audience,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Authorize resolves a presented token to its owner. The token's own exp is
// checked first, then the revocation cache, then the stored record.
func (s *TokenService) Authorize(ctx context.Context, presented string) (p *Principal, err error) {
	defer s.observe("authorize", time.Now(), &err)

	payload, rec, err := s.authorize(ctx, presented)
	if err != nil {
		return nil, err
	}
	return &Principal{OwnerID: rec.OwnerID, TokenID: payload.TokenID, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *TokenService) authorize(ctx context.Context, presented string) (*auth.Payload, *models.Token, error) {
	if strings.TrimSpace(presented) == "" {
		return nil, nil, common.ErrMissingCredential
	}

	payload, err := s.codec.Decode(presented)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	if !now.Before(payload.ExpiresAt) {
		return nil, nil, common.ErrTokenExpired
	}
	if s.denylist.Contains(payload.TokenID) {
		return nil, nil, common.ErrTokenRevoked
	}

	rec, err := s.repo().Get(ctx, payload.TokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
		}
		return nil, nil, err
	}
	if rec.OwnerID != payload.OwnerID {
		return nil, nil, fmt.Errorf("%w: subject does not match record", common.ErrorUnauthorized)
	}

	switch rec.EffectiveStatus(now) {
	case models.StatusRevoked:
		s.denylist.Add(rec.ID, rec.ExpiresAt)
		return nil, nil, common.ErrTokenRevoked
	case models.StatusExpired:
		return nil, nil, common.ErrTokenExpired
	}
	return payload, rec, nil
}

// Extend pushes the expiry of callerOwnerID's token forward by minutes,
// counting from the later of the current expiry and now.
func (s *TokenService) Extend(ctx context.Context, callerOwnerID, tokenID string, minutes int) (res *ExtendResult, err error) {
	defer s.observe("extend", time.Now(), &err)

	ext, err := s.checkDuration(minutes)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	rec, err := s.repo().Update(ctx, tokenID, func(t *models.Token) error {
		if t.OwnerID != callerOwnerID {
			return common.ErrForbidden
		}
		switch t.EffectiveStatus(now) {
		case models.StatusRevoked:
			return common.ErrAlreadyRevoked
		case models.StatusExpired:
			return common.ErrAlreadyExpired
		}
		base := t.ExpiresAt
		if now.After(base) {
			base = now
		}
		t.ExpiresAt = base.Add(ext)
		return nil
	})
	if err != nil {
		return nil, err
	}

	signed, err := s.codec.Encode(s.payloadOf(rec))
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "token extended", "token_id", rec.ID, "expires_at", rec.ExpiresAt)
	s.emit(ctx, audit.EventExtended, rec, now)

	return &ExtendResult{TokenID: rec.ID, Token: signed, ExpiresAt: rec.ExpiresAt}, nil
}

// Revoke marks callerOwnerID's token revoked. Revoking a revoked token
// succeeds without writing.
func (s *TokenService) Revoke(ctx context.Context, callerOwnerID, tokenID, reason string) (res *RevokeResult, err error) {
	defer s.observe("revoke", time.Now(), &err)

	now := s.clock()
	repo := s.repo()

	rec, err := repo.Update(ctx, tokenID, func(t *models.Token) error {
		if t.OwnerID != callerOwnerID {
			return common.ErrForbidden
		}
		if t.Status == models.StatusRevoked {
			return common.ErrAlreadyRevoked
		}
		at := now
		t.Status = models.StatusRevoked
		t.RevokedAt = &at
		t.RevocationReason = reason
		return nil
	})

	already := false
	if errors.Is(err, common.ErrAlreadyRevoked) {
		already = true
		rec, err = repo.Get(ctx, tokenID)
	}
	if err != nil {
		return nil, err
	}

	s.denylist.Add(rec.ID, rec.ExpiresAt)

	res = &RevokeResult{TokenID: rec.ID, AlreadyRevoked: already, RevokedAt: now}
	if rec.RevokedAt != nil {
		res.RevokedAt = *rec.RevokedAt
	}

	if !already {
		s.log.Info(ctx, "token revoked", "token_id", rec.ID, "reason", reason)
		s.emit(ctx, audit.EventRevoked, rec, now)
	}
	return res, nil
}

type noDenylist struct{}

func (noDenylist) Add(string, time.Time) {}
func (noDenylist) Contains(string) bool  { return false }

type noObserver struct{}

func (noObserver) ObserveOperation(string, error, time.Duration) {}
