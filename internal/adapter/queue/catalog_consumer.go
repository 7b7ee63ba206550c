package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// Catalog topic wiring, shared with the products service.
	ProductsExchange   = "products.exchange"
	ProductEventsQueue = "orders.product-events.queue"

	RKProductCreated      = "product.created"
	RKProductUpdated      = "product.updated"
	RKProductDeleted      = "product.deleted"
	RKProductStockUpdated = "product.stockupdated"
)

var catalogEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_events_total",
		Help: "Catalog events consumed, by routing key and outcome",
	},
	[]string{"routing_key", "outcome"},
)

// CatalogConsumer drains the durable catalog queue one message at a time on
// a single long-lived goroutine, so event order per routing key is the
// queue's order. Handler success acks; any error nacks WITHOUT requeue and
// the broker dead-letters the message.
type CatalogConsumer struct {
	ch          *amqp.Channel
	handlers    map[string]Handler
	callTimeout time.Duration
	log         *slog.Logger
}

type ConsumerOption func(*CatalogConsumer)

func WithCallTimeout(d time.Duration) ConsumerOption {
	return func(c *CatalogConsumer) { c.callTimeout = d }
}

// NewCatalogConsumer declares the exchange, the queue and its bindings.
// Declaring again is safe when they already exist.
func NewCatalogConsumer(ch *amqp.Channel, log *slog.Logger, opts ...ConsumerOption) (*CatalogConsumer, error) {
	c := &CatalogConsumer{
		ch:          ch,
		handlers:    make(map[string]Handler),
		callTimeout: 10 * time.Second,
		log:         log.With("component", "catalog-consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := ch.ExchangeDeclare(
		ProductsExchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		ProductEventsQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, err
	}

	for _, key := range []string{RKProductCreated, RKProductUpdated, RKProductDeleted, RKProductStockUpdated} {
		if err := ch.QueueBind(ProductEventsQueue, key, ProductsExchange, false, nil); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register associates a routing key with a handler.
func (c *CatalogConsumer) Register(routingKey string, h Handler) {
	c.handlers[routingKey] = h
}

// Start begins consuming; non-blocking (spawns one goroutine). The drain is
// strictly sequential: no message is handled before the previous one was
// acked or nacked.
func (c *CatalogConsumer) Start() error {
	// One unacked message at a time.
	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(
		ProductEventsQueue,
		"orders-catalog-consumer",
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	c.log.Info("listening for product events", "queue", ProductEventsQueue)

	go func() {
		for d := range deliveries {
			c.handle(d)
		}
		c.log.Info("catalog consumer stopped")
	}()
	return nil
}

func (c *CatalogConsumer) handle(d amqp.Delivery) {
	h, ok := c.handlers[d.RoutingKey]
	if !ok {
		c.log.Warn("unknown routing key, dropping message", "routing_key", d.RoutingKey)
		catalogEvents.WithLabelValues(d.RoutingKey, "dropped").Inc()
		_ = d.Ack(false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	err := h.Handle(ctx, d)
	cancel()

	if err != nil {
		c.log.Error("catalog event handler failed, dead-lettering",
			"routing_key", d.RoutingKey, "error", err)
		catalogEvents.WithLabelValues(d.RoutingKey, "nacked").Inc()
		_ = d.Nack(false, false) // no requeue: poison containment
		return
	}
	catalogEvents.WithLabelValues(d.RoutingKey, "processed").Inc()
	_ = d.Ack(false)
}
