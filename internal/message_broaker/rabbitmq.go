package message_broaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQOptions describes the topology the publisher declares on connect.
type RabbitMQOptions struct {
	URL         string
	Exchange    string
	Queue       string
	RoutingKey  string
	ContentType string
}

// RabbitMQ publishes commands on a confirm mode channel. Publish returns once
// the broker acked or nacked the message.
type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	contentType string

	// one publisher at a time keeps confirm sequence numbers in order
	mu sync.Mutex
}

func NewRabbitMQ(opts RabbitMQOptions) (*RabbitMQ, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, opts); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		exchange:    opts.Exchange,
		contentType: contentType,
	}, nil
}

func declareTopology(ch *amqp.Channel, opts RabbitMQOptions) error {
	if err := ch.ExchangeDeclare(opts.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", opts.Exchange, err)
	}
	if opts.Queue != "" {
		if _, err := ch.QueueDeclare(opts.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %q: %w", opts.Queue, err)
		}
		if err := ch.QueueBind(opts.Queue, opts.RoutingKey, opts.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %q: %w", opts.Queue, err)
		}
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		r.exchange,
		routingKey,
		true,
		false,
		amqp.Publishing{
			ContentType:  r.contentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         message,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %q: %w", routingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %q: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected message for %q", routingKey)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
