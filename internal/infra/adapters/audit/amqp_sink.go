package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.AuditSink = (*AMQPSink)(nil)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events to a durable topic exchange with routing key
// "audit.<action>" so downstream consumers (analytics, dashboards) can bind
// to the actions they care about.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       publisher
	closer   func() error
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, closer: ch.Close, exchange: exchange}, nil
}

func RoutingKey(action model.AuditAction) string {
	return "audit." + string(action)
}

func (s *AMQPSink) Record(ctx context.Context, ev model.AuditEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.PublishWithContext(ctx,
		s.exchange,
		RoutingKey(ev.Action),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func (s *AMQPSink) Close() error {
	if s.closer != nil {
		_ = s.closer()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
