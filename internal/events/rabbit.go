package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultExchange = "shop.events"
	cartRoutingKey  = "cart.updated"
)

// Rabbit publishes events to a topic exchange.
type Rabbit struct {
	ch       *amqp.Channel
	exchange string
}

func NewRabbit(conn *amqp.Connection) (*Rabbit, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(defaultExchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Rabbit{ch: ch, exchange: defaultExchange}, nil
}

func (r *Rabbit) PublishCartUpdated(ctx context.Context, ev CartUpdated) error {
	ev.EventName = CartUpdatedEventName
	ev.EventVersion = CartUpdatedEventVersion
	ev.Producer = Producer
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = r.ch.PublishWithContext(ctx, r.exchange, cartRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    ev.EventID,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", cartRoutingKey, err)
	}
	return nil
}
