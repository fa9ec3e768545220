package report

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/session"
)

// AMQPSink publishes envelopes to a fanout exchange.
type AMQPSink struct {
	exchange   string
	routingKey string
	codec      Codec
	identity   Identity
	clock      clock.Clock

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPSink dials the broker at url and declares exchange.
func NewAMQPSink(url, exchange, routingKey string, codec Codec, ident Identity) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	return &AMQPSink{
		exchange:   exchange,
		routingKey: routingKey,
		codec:      codec,
		identity:   ident,
		clock:      clock.Real(),
		conn:       conn,
		channel:    ch,
	}, nil
}

func (s *AMQPSink) Report(ctx context.Context, event string, props session.Properties) error {
	env := NewEnvelope(event, props, s.identity, s.clock.Now())
	body, err := s.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}
	err = s.channel.PublishWithContext(ctx,
		s.exchange,
		s.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  s.codec.ContentType(),
			MessageId:    env.ID,
			Type:         event,
			Timestamp:    env.CreatedAt,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publishing %s: %w", event, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close()
}
