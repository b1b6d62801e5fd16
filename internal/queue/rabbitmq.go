package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dlxExchangeName = "dispatch.dlx"
	dlqRoutingKey   = WorkQueueName

	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ owns the broker connection, redials it when it drops and
// declares the work queue topology on every channel it hands out.
type RabbitMQ struct {
	url    string
	logger *zap.Logger

	mu     sync.RWMutex
	dialMu sync.Mutex
	conn   *amqp.Connection
}

func NewRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RabbitMQ{url: url, logger: logger}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if _, err := r.connection(dialCtx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		// The connection may have dropped between the check and the call.
		conn, err = r.redial(ctx, conn)
		if err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after redial: %w", err)
		}
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	return r.redial(ctx, conn)
}

// redial replaces stale with a fresh connection unless another caller
// already did.
func (r *RabbitMQ) redial(ctx context.Context, stale *amqp.Connection) (*amqp.Connection, error) {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	r.mu.RLock()
	current := r.conn
	r.mu.RUnlock()
	if current != nil && current != stale && !current.IsClosed() {
		return current, nil
	}

	wait := reconnectBackoff
	for attempt := 1; ; attempt++ {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			old := r.conn
			r.conn = conn
			r.mu.Unlock()

			if old != nil && !old.IsClosed() {
				_ = old.Close()
			}
			if attempt > 1 {
				r.logger.Info("rabbitmq connection restored", zap.Int("attempts", attempt))
			}
			return conn, nil
		}

		r.logger.Warn("rabbitmq dial failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retryIn", wait),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq dial canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait = min(wait*2, maxBackoff)
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", DLQName, err)
	}
	if err := ch.QueueBind(DLQName, dlqRoutingKey, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", DLQName, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := ch.QueueDeclare(WorkQueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", WorkQueueName, err)
	}

	return nil
}
