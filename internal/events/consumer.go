package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message body. A returned error nacks the message
// without requeue.
type HandlerFunc func(ctx context.Context, body []byte) error

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}

// StartConsumer binds a durable queue for routingKey on the events exchange and
// runs handler for each delivery until ctx is cancelled.
func StartConsumer(ctx context.Context, conn *amqp.Connection, routingKey, consumerTag string, handler HandlerFunc, log *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	queue := QueueName(routingKey)
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(queue, routingKey, EventsExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info("stopping consumer", zap.String("queue", queue))
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Warn("messages channel closed", zap.String("queue", queue))
					return
				}
				process(ctx, msg, handler, log)
			}
		}
	}()

	return &Consumer{ch: ch, queue: queue}, nil
}

func process(ctx context.Context, msg amqp.Delivery, handler HandlerFunc, log *zap.Logger) {
	if err := handler(ctx, msg.Body); err != nil {
		log.Error("handle message failed",
			zap.String("routingKey", msg.RoutingKey),
			zap.String("messageId", msg.MessageId),
			zap.Error(err),
		)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}
