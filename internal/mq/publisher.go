package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// SampleEvent is published for every sample emitted into the time-series sink
type SampleEvent struct {
	EventID    string            `json:"event_id"`
	EntityKey  string            `json:"entity_key"`
	Value      float64           `json:"value"`
	Timestamp  string            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// RefreshRequest asks the coordinator to run a poll cycle now
type RefreshRequest struct {
	RequestID   string    `json:"request_id"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// PublishSampleEvent publishes an emitted sample
func (p *Publisher) PublishSampleEvent(ctx context.Context, event SampleEvent, routingKey string) error {
	if err := p.publish(ctx, event, routingKey); err != nil {
		return fmt.Errorf("failed to publish sample event: %w", err)
	}

	p.logger.Debug("published sample event",
		zap.String("routing_key", routingKey),
		zap.String("entity", event.EntityKey),
		zap.String("timestamp", event.Timestamp),
	)
	return nil
}

// PublishRefreshRequest publishes a refresh request
func (p *Publisher) PublishRefreshRequest(ctx context.Context, req RefreshRequest, routingKey string) error {
	if err := p.publish(ctx, req, routingKey); err != nil {
		return fmt.Errorf("failed to publish refresh request: %w", err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, v any, routingKey string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
