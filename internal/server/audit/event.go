// Package audit records token lifecycle events to pluggable sinks.
// Sink failures are logged and never fail the operation that emitted them.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventGenerated EventType = "generated"
	EventExtended  EventType = "extended"
	EventRevoked   EventType = "revoked"
	EventExpired   EventType = "expired"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TokenID   string    `json:"tokenId"`
	OwnerID   string    `json:"ownerId"`
	At        time.Time `json:"at"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reason    string    `json:"reason,omitempty"`
}

// NewEvent describes t after a transition of the given type.
func NewEvent(typ EventType, t *models.Token, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TokenID:   t.ID,
		OwnerID:   t.OwnerID,
		At:        at.UTC(),
		ExpiresAt: t.ExpiresAt.UTC(),
		Reason:    t.RevocationReason,
	}
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// LogSink writes events to a Logger.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log.With("module", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	s.log.Info(ctx, "token "+string(e.Type),
		"event_id", e.ID,
		"token_id", e.TokenID,
		"owner_id", e.OwnerID,
		"expires_at", e.ExpiresAt,
		"reason", e.Reason,
	)
}

// MultiSink fans events out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
