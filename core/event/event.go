// Package event defines the domain events exchanged between the ledger and the notification dispatcher.
package event

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TransactionRecorded Type = "transaction_recorded"
	TransactionReversed Type = "transaction_reversed"
	PaymentReceived     Type = "payment_received"
	SubmissionPending   Type = "submission_pending"
)

// Event is a domain event; Amount is set for money events only.
type Event struct {
	ID                string           `json:"id"`
	Type              Type             `json:"type"`
	Domain            string           `json:"domain,omitempty"`
	UnitID            int64            `json:"unit_id,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	Subject           string           `json:"subject,omitempty"` // counterparty, payer or submission title
	RelatedEntityType string           `json:"related_entity_type,omitempty"`
	RelatedEntityID   string           `json:"related_entity_id,omitempty"`
	ActorID           string           `json:"actor_id,omitempty"`
	OccurredAt        time.Time        `json:"occurred_at"`
}

type (
	// Publisher delivers events to their consumers.
	Publisher interface {
		Publish(ctx context.Context, ev Event) error
	}

	// Handler consumes events.
	Handler interface {
		HandleEvent(ctx context.Context, ev Event) error
	}

	HandlerFunc func(ctx context.Context, ev Event) error
)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
