package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/middleware"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
)

// Sequencer numbers the events of one order.
type Sequencer interface {
	Next(ctx context.Context, orderID string) (int64, error)
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	ch       channel
	seq      Sequencer
	producer string
	log      *zap.Logger
	now      func() time.Time
}

func NewPublisher(conn *amqp.Connection, seq Sequencer, log *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return newPublisher(ch, seq, log), nil
}

func newPublisher(ch channel, seq Sequencer, log *zap.Logger) *Publisher {
	return &Publisher{ch: ch, seq: seq, producer: "checkout-service", log: log, now: time.Now}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// PublishOrderCreated emits the enveloped OrderCreated event for a committed order.
func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	seq, err := p.seq.Next(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	env := BuildOrderCreatedEnvelope(o, seq, p.producer, Trace{
		CorrelationID: middleware.GetCorrelationID(ctx),
	}, p.now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal OrderCreated envelope: %w", err)
	}

	if err := p.publishJSON(ctx, OrderCreatedRoutingKey, env.EventID, env.CorrelationID, body); err != nil {
		return err
	}
	p.log.Debug("published event",
		zap.String("event", OrderCreatedEventName),
		zap.String("orderId", o.ID),
		zap.Int64("sequence", seq),
	)
	return nil
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID, correlationID string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     messageID,
			CorrelationId: correlationID,
			Timestamp:     p.now().UTC(),
			Body:          body,
		},
	)
}
