package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/metrics"
	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
)

// ErrMalformed marks a message that can never be processed.  It is
// rejected without requeue.
var ErrMalformed = errors.New("malformed message")

// Handler processes one message body.  A nil error acks, ErrMalformed
// drops, anything else requeues.
type Handler func(ctx context.Context, body []byte) error

// SeatIncrementer is the event store operation seat releases apply.
type SeatIncrementer interface {
	IncrementSeats(ctx context.Context, id uint64, qty int) error
}

// Consumer reads the configured queues and dispatches to their handlers,
// reconnecting with exponential backoff until its context ends.
type Consumer struct {
	url      string
	log      *zap.Logger
	handlers map[string]Handler
	prefetch int
	// requeueDelay slows down redelivery of failing messages.
	requeueDelay time.Duration
}

func NewConsumer(url string, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		url:          url,
		log:          log.Named("consumer"),
		handlers:     map[string]Handler{},
		prefetch:     20,
		requeueDelay: time.Second,
	}
}

// Handle registers h for queue.  Call before Run.
func (c *Consumer) Handle(queue string, h Handler) *Consumer {
	c.handlers[queue] = h
	return c
}

// Run consumes until ctx is cancelled and then returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(c.url, dialConfig(ctx, defaultDialTimeout))
		if err != nil {
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

type delivery struct {
	queue string
	amqp.Delivery
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}

	merged := make(chan delivery)
	done := make(chan struct{})
	defer close(done)
	for queue := range c.handlers {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", queue, err)
		}
		msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", queue, err)
		}
		go func(queue string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case merged <- delivery{queue: queue, Delivery: d}:
				case <-done:
					return
				}
			}
		}(queue, msgs)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("channel closed")
			}
			return amqpErr
		case d := <-merged:
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d delivery) {
	err := c.handlers[d.queue](ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrMalformed):
		c.log.Error("dropping message", zap.String("queue", d.queue), zap.Error(err))
		_ = d.Nack(false, false)
	default:
		c.log.Warn("handler failed, requeueing", zap.String("queue", d.queue), zap.Error(err))
		sleep(ctx, c.requeueDelay)
		_ = d.Nack(false, true)
	}
}

// SeatReleaseHandler gives queued seats back to their event.  Releases
// that can no longer apply (event deleted, seats already back) are acked.
func SeatReleaseHandler(store SeatIncrementer, log *zap.Logger) Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, body []byte) error {
		var r model.SeatRelease
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if r.EventID == 0 || r.Quantity < 1 {
			return fmt.Errorf("%w: release for event %d qty %d", ErrMalformed, r.EventID, r.Quantity)
		}
		fields := []zap.Field{zap.String("ticket_id", r.TicketID), zap.Uint64("event_id", r.EventID), zap.Int("quantity", r.Quantity)}

		err := store.IncrementSeats(ctx, r.EventID, r.Quantity)
		switch {
		case err == nil:
			metrics.SeatReleases.WithLabelValues(metrics.ReleaseRestored).Inc()
			log.Info("queued seat release applied", fields...)
			return nil
		case errors.Is(err, repository.ErrEventNotFound), errors.Is(err, repository.ErrSeatsUnavailable):
			metrics.SeatReleases.WithLabelValues(metrics.ReleaseDropped).Inc()
			log.Warn("queued seat release no longer applies", append(fields, zap.Error(err))...)
			return nil
		}
		return err
	}
}

// sleep waits d or until ctx ends; it reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
