package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Elias24978/safety-app/pkg/domain"
)

// Publisher is the part of an AMQP channel the sender needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender hands notifications to an external delivery worker by
// publishing them as persistent JSON messages.
type AMQPSender struct {
	publisher  Publisher
	exchange   string
	routingKey string
	closeFn    func() error
}

// AMQPConfig configures the outbox exchange.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// NewAMQPSender dials the broker and declares a durable direct exchange.
func NewAMQPSender(cfg AMQPConfig) (*AMQPSender, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = "notifications"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	s := NewAMQPSenderWithPublisher(ch, exchange, cfg.RoutingKey)
	s.closeFn = conn.Close
	return s, nil
}

// NewAMQPSenderWithPublisher wraps an existing channel.
func NewAMQPSenderWithPublisher(p Publisher, exchange, routingKey string) *AMQPSender {
	if strings.TrimSpace(routingKey) == "" {
		routingKey = "push"
	}
	return &AMQPSender{publisher: p, exchange: exchange, routingKey: routingKey}
}

// Send publishes n.
func (s *AMQPSender) Send(ctx context.Context, n domain.Notification) error {
	if n.Token == "" {
		return ErrNoToken
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	err = s.publisher.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close closes the broker connection when the sender owns it.
func (s *AMQPSender) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}
