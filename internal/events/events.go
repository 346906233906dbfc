package events

import (
	"context"
	"time"
)

const (
	CartUpdatedEventName    = "CartUpdated"
	CartUpdatedEventVersion = 1
	Producer                = "shopinfra-api"
)

// CartUpdated is emitted after every successful cart mutation. Consumers use
// it for analytics and abandoned-cart flows; publishing is best-effort and
// never blocks the mutation result.
type CartUpdated struct {
	EventName      string    `json:"eventName"`
	EventVersion   int       `json:"eventVersion"`
	EventID        string    `json:"eventId"`
	Producer       string    `json:"producer"`
	CartID         string    `json:"cartId"`
	Action         string    `json:"action"`
	TotalItemCount int       `json:"totalItemCount"`
	TotalAmount    float64   `json:"totalAmount"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher delivers cart events to interested consumers.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, ev CartUpdated) error
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishCartUpdated(context.Context, CartUpdated) error { return nil }
