package repositories

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"txt-worker/domain"
)

var ErrDeliveriesClosed = errors.New("amqp delivery channel closed")

// AMQPChannel is the subset of *amqp.Channel the worker uses.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// DeliveryHandler receives each message body together with its delivery handle.
// It is called from the consume loop and must not block on job completion.
type DeliveryHandler func(ctx context.Context, body []byte, handle *AMQPDelivery)

// AMQPBroker owns the process-wide connection and channel.
type AMQPBroker struct {
	conn     *amqp.Connection
	ch       AMQPChannel
	queue    string
	prefetch int

	// mu serialises acks and nacks issued from job goroutines.
	mu sync.Mutex
}

// DialAMQP connects to the broker. Callers treat a failure here as fatal.
func DialAMQP(url string, prefetch int) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ at %s: %w", url, err)
	}
	return &AMQPBroker{conn: conn, queue: domain.QueueName, prefetch: prefetch}, nil
}

// NewAMQPBroker wraps an already opened channel.
func NewAMQPBroker(ch AMQPChannel, prefetch int) *AMQPBroker {
	return &AMQPBroker{ch: ch, queue: domain.QueueName, prefetch: prefetch}
}

// Queue is the name of the queue the broker consumes from once Setup succeeded.
func (b *AMQPBroker) Queue() string {
	return b.queue
}

// Setup opens the channel if needed and declares the books fanout topology.
func (b *AMQPBroker) Setup() error {
	if b.ch == nil {
		if b.conn == nil {
			return errors.New("amqp connection is not open")
		}
		ch, err := b.conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to create channel: %w", err)
		}
		b.ch = ch
	}

	if err := b.ch.ExchangeDeclare(domain.ExchangeName, domain.ExchangeKind, false, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", domain.ExchangeName, err)
	}

	q, err := b.ch.QueueDeclare(domain.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", domain.QueueName, err)
	}
	if q.Name != "" {
		b.queue = q.Name
	}

	// fanout ignores the routing key
	if err := b.ch.QueueBind(b.queue, domain.BindingKey, domain.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", b.queue, domain.ExchangeName, err)
	}

	if b.prefetch > 0 {
		if err := b.ch.Qos(b.prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch to %d: %w", b.prefetch, err)
		}
	}
	return nil
}

// Consume starts manual-ack delivery and feeds the handler until ctx is cancelled
// or the broker closes the delivery channel.
func (b *AMQPBroker) Consume(ctx context.Context, handler DeliveryHandler) error {
	if b.ch == nil {
		return errors.New("amqp channel is not open")
	}
	deliveries, err := b.ch.ConsumeWithContext(ctx, b.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", b.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDeliveriesClosed
			}
			handler(ctx, d.Body, &AMQPDelivery{delivery: d, mu: &b.mu})
		}
	}
}

// Close releases the channel and then the connection.
func (b *AMQPBroker) Close() error {
	var errs []error
	if b.ch != nil {
		if err := b.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if b.conn != nil && !b.conn.IsClosed() {
		if err := b.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		log.Printf("Error closing broker: %v", errs)
	}
	return errors.Join(errs...)
}

// AMQPDelivery is the handle for one received message.
type AMQPDelivery struct {
	delivery amqp.Delivery
	mu       *sync.Mutex
}

func (d *AMQPDelivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery %d: %w", d.delivery.DeliveryTag, err)
	}
	return nil
}

func (d *AMQPDelivery) Nack(requeue bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.delivery.Nack(false, requeue); err != nil {
		return fmt.Errorf("failed to nack delivery %d: %w", d.delivery.DeliveryTag, err)
	}
	return nil
}
