// Package events publishes domain events after successful writes. Delivery is
// best effort: a failed publish is logged and never fails the request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const subjectPrefix = "cabinet."

const (
	CandidateCreated   = "candidate.created"
	CandidateDeleted   = "candidate.deleted"
	OfferCreated       = "offer.created"
	OfferDeleted       = "offer.deleted"
	InvitationCreated  = "invitation.created"
	InvitationAccepted = "invitation.accepted"
	CompanyRegistered  = "company.registered"
)

// Event is the envelope published for every domain event.
type Event struct {
	Type       string    `json:"type"`
	CompanyID  string    `json:"companyId"`
	ActorID    string    `json:"actorId,omitempty"`
	EntityID   string    `json:"entityId"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes events on core NATS under "cabinet.<type>".
type NATSPublisher struct {
	conn  conn
	close func()
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("cabinet-api"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: nc, close: func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(subjectPrefix+event.Type, data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}

// Emit publishes and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, event Event) {
	if err := p.Publish(ctx, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("event", event.Type).Str("entity_id", event.EntityID).Msg("event publish failed")
	}
}
