package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ignatzorin/escrow-engine/internal/domain/event"
)

const DefaultExchange = "escrow.events"

// Publisher отправляет доменные события в topic-exchange RabbitMQ.
// Ключ маршрутизации совпадает с типом события, например "dispute.opened".
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, events ...event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range events {
		msg, err := NewMessage(e)
		if err != nil {
			return err
		}
		if err := p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg); err != nil {
			return fmt.Errorf("rabbitmq: publish %s: %w", e.Type, err)
		}
	}
	return nil
}

// NewMessage упаковывает событие в постоянное JSON-сообщение.
func NewMessage(e event.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq: marshal %s: %w", e.Type, err)
	}
	return amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     e.ID.String(),
		CorrelationId: e.SubjectID.String(),
		Timestamp:     e.OccurredAt.UTC(),
		Type:          string(e.Type),
		Body:          body,
		Headers: amqp.Table{
			"x-source":       "escrow-engine",
			"x-subject-kind": string(e.SubjectKind),
		},
	}, nil
}

// Ping: проверка соединения для /health.
func (p *Publisher) Ping() error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq: connection is closed")
	}
	return nil
}

func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
