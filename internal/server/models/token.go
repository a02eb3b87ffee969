// Package models defines server-side data models persisted by the token store.
package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
)

// Status is the lifecycle state of a token record.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// ParseStatus accepts the three lifecycle names.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusExpired, StatusRevoked:
		return Status(s), true
	}
	return "", false
}

// Claims are the application-defined JSON claims embedded in a token.
type Claims map[string]any

// Keys returns claim names in sorted order.
func (c Claims) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every claim value serializes to JSON.
func (c Claims) Validate() error {
	for _, k := range c.Keys() {
		if k == "" {
			return fmt.Errorf("empty claim name")
		}
		if _, err := json.Marshal(c[k]); err != nil {
			return fmt.Errorf("claim %q: %w", k, err)
		}
	}
	return nil
}

// Clone returns a shallow copy of the claim map.
func (c Claims) Clone() Claims {
	if c == nil {
		return nil
	}
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Token is the authoritative record of an issued token.
type Token struct {
	// ID is the jti: 128 random bits, hex encoded.
	ID string
	// OwnerID is the sub of the token.
	OwnerID string
	// Name is the human label given at generation.
	Name string
	// Claims holds the custom claims, sub included.
	Claims   Claims
	Issuer   string
	Audience []string
	// KeyID references the signing key the token was minted with.
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Status    Status

	RevokedAt        *time.Time
	RevocationReason string

	// Version is bumped on every successful write and guards updates.
	Version int64
}

// EffectiveStatus folds the clock into the stored status: a revoked record
// stays revoked, otherwise it is expired once now reaches ExpiresAt.
func (t *Token) EffectiveStatus(now time.Time) Status {
	switch {
	case t.Status == StatusRevoked:
		return StatusRevoked
	case t.Status == StatusExpired || !now.Before(t.ExpiresAt):
		return StatusExpired
	default:
		return StatusActive
	}
}

// Clone returns a deep copy safe to mutate.
func (t *Token) Clone() *Token {
	out := *t
	out.Claims = t.Claims.Clone()
	out.Audience = slices.Clone(t.Audience)
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	return &out
}
