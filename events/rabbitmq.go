package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// RabbitPublisher sends each event as a persistent JSON message to a topic
// exchange. The routing key is the event type, e.g. "lesson.scheduled".
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func NewRabbitPublisher(url, exchange string, log zerolog.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("RabbitMQ publisher ready")
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange, logger: log}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, e Event) error {
	e = e.stamp()
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.channel.PublishWithContext(
		publishCtx,
		p.exchange,     // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    e.ID,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.OccurredAt,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to close RabbitMQ channel")
	}
	return p.conn.Close()
}
