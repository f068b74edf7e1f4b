package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher emits ledger events to a direct AMQP exchange. It is optional
// infrastructure: callers hold a nil *Publisher when no broker is
// configured and publishing becomes a no-op.
type Publisher struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewPublisher(url, exchangeName string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &Publisher{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
	}

	if err := p.setup(); err != nil {
		p.Close()
		return nil, fmt.Errorf("setup exchange: %w", err)
	}
	return p, nil
}

func (p *Publisher) setup() error {
	err := p.channel.ExchangeDeclare(
		p.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// PublishTransactionCreated emits a transaction.created event.
func (p *Publisher) PublishTransactionCreated(ctx context.Context, userID, transactionID int64, source string) error {
	if p == nil {
		return nil
	}
	body, err := NewTransactionCreatedMessage(userID, transactionID, source).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := p.publish(ctx, KeyTransactionCreated, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published transaction created event",
		"user_id", userID,
		"transaction_id", transactionID,
		"exchange", p.exchangeName)
	return nil
}

// PublishImportCompleted emits an import.completed event.
func (p *Publisher) PublishImportCompleted(ctx context.Context, userID int64, imported int) error {
	if p == nil {
		return nil
	}
	body, err := NewImportCompletedMessage(userID, imported).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := p.publish(ctx, KeyImportCompleted, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published import completed event",
		"user_id", userID,
		"imported", imported,
		"exchange", p.exchangeName)
	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := p.channel.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
