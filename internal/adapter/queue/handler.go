package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes a single delivery. Handlers must be idempotent: the
// broker delivers at least once, possibly duplicated or out of order.
// Return nil => ACK; return error => NACK without requeue (dead-letter).
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}
