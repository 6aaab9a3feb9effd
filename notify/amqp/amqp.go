// Package amqp publishes notification requests to a RabbitMQ exchange. A mail
// worker consuming the queue owns the actual delivery.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MrEthical07/authcore/notify"
)

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the JSON body of every published notification.
type Message struct {
	Kind      string    `json:"kind"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher implements notify.Notifier over an AMQP channel.
type Publisher struct {
	ch       Channel
	exchange string
	now      func() time.Time
}

var _ notify.Notifier = (*Publisher)(nil)

// New returns a Publisher writing to exchange. Routing keys are
// "auth.verification" and "auth.password_reset".
func New(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, now: time.Now}
}

// Dial opens a connection and channel and returns a Publisher bound to them.
// The returned close function releases both.
func Dial(url, exchange string) (*Publisher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("amqp exchange declare: %w", err)
		}
	}
	closer := func() error {
		return errors.Join(ch.Close(), conn.Close())
	}
	return New(ch, exchange), closer, nil
}

func (p *Publisher) SendVerification(ctx context.Context, email, token string) error {
	return p.publish(ctx, notify.KindVerification, email, token)
}

func (p *Publisher) SendPasswordReset(ctx context.Context, email, token string) error {
	return p.publish(ctx, notify.KindPasswordReset, email, token)
}

func (p *Publisher) publish(ctx context.Context, kind, email, token string) error {
	body, err := json.Marshal(Message{Kind: kind, Email: email, Token: token, CreatedAt: p.now().UTC()})
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "auth."+kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", kind, err)
	}
	return nil
}
