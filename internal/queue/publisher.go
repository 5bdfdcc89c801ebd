package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/model"
)

const defaultDialTimeout = 3 * time.Second

// Publisher sends persistent JSON messages to durable queues over one
// lazily opened connection.  A broken connection is dropped and reopened on
// the next publish.  Every step, including waiting for another publish and
// the AMQP handshake, ends when the caller's context does.
type Publisher struct {
	url string
	log *zap.Logger

	// DialTimeout caps connecting plus the AMQP handshake.
	DialTimeout time.Duration

	lock     chan struct{} // one slot; guards the fields below
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		url:         url,
		log:         log.Named("publisher"),
		DialTimeout: defaultDialTimeout,
		lock:        make(chan struct{}, 1),
		declared:    map[string]bool{},
	}
}

// ReleaseSeats queues a seat release for the consumer to apply.
func (p *Publisher) ReleaseSeats(ctx context.Context, r model.SeatRelease) error {
	return p.Publish(ctx, SeatReleaseQueue, r)
}

// Publish marshals v and publishes it to queue via the default exchange.
func (p *Publisher) Publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queue, err)
	}

	select {
	case p.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", queue, ctx.Err())
	}
	defer func() { <-p.lock }()

	ch, err := p.channel(ctx, queue)
	if err != nil {
		p.log.Warn("publish failed", zap.String("queue", queue), zap.Error(err))
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.reset()
		p.log.Warn("publish failed", zap.String("queue", queue), zap.Error(err))
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// channel returns an open channel with queue declared.  Caller holds the lock.
func (p *Publisher) channel(ctx context.Context, queue string) (*amqp.Channel, error) {
	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		p.reset()
		conn, err := amqp.DialConfig(p.url, dialConfig(ctx, p.DialTimeout))
		if err != nil {
			return nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq channel: %w", err)
		}
		p.conn, p.ch = conn, ch
	}
	if !p.declared[queue] {
		// Idempotent; durable so messages survive broker restarts.
		if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.reset()
			return nil, fmt.Errorf("queue declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}
	return p.ch, nil
}

// dialConfig connects under ctx and leaves a deadline on the socket for
// the handshake: timeout or the context deadline, whichever comes first.
// amqp clears it once the connection is open.
func dialConfig(ctx context.Context, timeout time.Duration) amqp.Config {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			deadline := time.Now().Add(timeout)
			if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
				deadline = dl
			}
			d := net.Dialer{Deadline: deadline}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	}
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	p.declared = map[string]bool{}
}

// Close releases the connection.
func (p *Publisher) Close() error {
	p.lock <- struct{}{}
	defer func() { <-p.lock }()
	p.reset()
	return nil
}
