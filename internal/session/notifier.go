package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tenant-service/pkg/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RevokedEvent announces that a user's sessions were revoked
type RevokedEvent struct {
	UserID    string `json:"user_id"`
	Revoked   int64  `json:"revoked"`
	Reason    string `json:"reason"`
	RevokedAt string `json:"revoked_at"`
}

// Notifier publishes revocation events
type Notifier interface {
	Publish(ctx context.Context, event RevokedEvent) error
}

// AMQPNotifier publishes events as persistent JSON messages to a durable queue.
// The connection is opened on first use and re-dialed after it drops.
type AMQPNotifier struct {
	url   string
	queue string
	log   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewAMQPNotifier(cfg *config.AMQPConfig, log *zap.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		url:   cfg.URL,
		queue: cfg.RevokedQueue,
		log:   log.Named("amqp_notifier"),
	}
}

func (n *AMQPNotifier) connection() (*amqp.Connection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil && !n.conn.IsClosed() {
		return n.conn, nil
	}
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	n.conn = conn
	return conn, nil
}

// Publish sends event to the revocation queue
func (n *AMQPNotifier) Publish(ctx context.Context, event RevokedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal revoked event: %w", err)
	}

	conn, err := n.connection()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		n.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close releases the broker connection
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil || n.conn.IsClosed() {
		return nil
	}
	return n.conn.Close()
}
