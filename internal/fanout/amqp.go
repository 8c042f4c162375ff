package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/telegate/telegate/internal/telegram"
)

// AMQP publishes notifications to a durable topic exchange. Routing key:
// <entity kind>.<notification kind>, e.g. "bot.new_message".
type AMQP struct {
	conn     *amqp091.Connection
	exchange string
}

// NewAMQP dials the broker and declares the exchange.
func NewAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	log.Printf("[Fanout] AMQP connected, exchange %s", exchange)
	return &AMQP{conn: conn, exchange: exchange}, nil
}

// Publish delivers one event as a persistent JSON message.
func (a *AMQP) Publish(ctx context.Context, ev telegram.NotificationEvent) error {
	Stamp(&ev)

	ch, err := a.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	key := string(ev.Entity.Kind) + "." + ev.Kind
	err = ch.PublishWithContext(ctx, a.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close closes the broker connection.
func (a *AMQP) Close() error {
	return a.conn.Close()
}
