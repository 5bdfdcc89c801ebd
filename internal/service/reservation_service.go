package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/clock"
	"github.com/iliyamo/eventhub-tickets/internal/metrics"
	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
)

// SeatInventory is the part of the event store the reservation path needs.
// DecrementSeats must be a single conditional write: it either takes qty
// seats or reports repository.ErrSeatsUnavailable.
type SeatInventory interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	DecrementSeats(ctx context.Context, id uint64, qty int) error
	IncrementSeats(ctx context.Context, id uint64, qty int) error
}

// TicketStore persists tickets.
type TicketStore interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id string) (*model.TicketDetail, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Ticket, error)
}

// Transactor runs fn inside one transaction shared by the stores.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SeatReconciler takes over a seat release the service could not apply.
type SeatReconciler interface {
	ReleaseSeats(ctx context.Context, r model.SeatRelease) error
}

// PurchaseInput is what a customer submits.
type PurchaseInput struct {
	EventID       uint64 `json:"event_id"`
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string `json:"customer_email" validate:"required,email,max=254"`
	Quantity      int    `json:"quantity" validate:"gte=1"`
}

// ReservationService sells seats.  It is the only writer of an event's
// available seat count.
type ReservationService struct {
	events     SeatInventory
	tickets    TicketStore
	tx         Transactor
	reconciler SeatReconciler
	clock      clock.Clock
	log        *zap.Logger

	maxAttempts    int
	retryBackoff   time.Duration
	releaseTimeout time.Duration
}

const (
	defaultMaxAttempts    = 3
	defaultRetryBackoff   = 25 * time.Millisecond
	defaultReleaseTimeout = 5 * time.Second
)

type ReservationOption func(*ReservationService)

// WithTransactor makes the seat decrement and the ticket insert commit
// together.  Without it the service compensates a failed insert.
func WithTransactor(tx Transactor) ReservationOption {
	return func(s *ReservationService) { s.tx = tx }
}

// WithSeatReconciler sets where releases go when the in-process
// compensation fails.
func WithSeatReconciler(r SeatReconciler) ReservationOption {
	return func(s *ReservationService) { s.reconciler = r }
}

// WithReleaseTimeout bounds the compensation of a failed ticket write,
// including the hand-off to the reconciler.
func WithReleaseTimeout(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.releaseTimeout = d
		}
	}
}

// WithMaxAttempts bounds retries of purchases failing with a retryable
// storage error.
func WithMaxAttempts(n int) ReservationOption {
	return func(s *ReservationService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d >= 0 {
			s.retryBackoff = d
		}
	}
}

func WithLogger(l *zap.Logger) ReservationOption {
	return func(s *ReservationService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewReservationService(events SeatInventory, tickets TicketStore, clk clock.Clock, opts ...ReservationOption) *ReservationService {
	s := &ReservationService{
		events:         events,
		tickets:        tickets,
		clock:          clk,
		log:            zap.NewNop(),
		maxAttempts:    defaultMaxAttempts,
		retryBackoff:   defaultRetryBackoff,
		releaseTimeout: defaultReleaseTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	return s
}

// Purchase sells in.Quantity seats of in.EventID and returns the new ticket.
//
// Checks run in this order: the event must exist (ErrNotFound), must have
// enough seats (ErrInsufficientInventory), then the buyer details and
// quantity must be valid (ErrInvalidInput).  Losing a race for the last
// seats also yields ErrInsufficientInventory.  Calls are not idempotent.
func (s *ReservationService) Purchase(ctx context.Context, in PurchaseInput) (*model.Ticket, error) {
	t, err := s.purchase(ctx, in)
	metrics.Purchases.WithLabelValues(purchaseResult(err)).Inc()
	return t, err
}

func (s *ReservationService) purchase(ctx context.Context, in PurchaseInput) (*model.Ticket, error) {
	ev, err := s.events.GetByID(ctx, in.EventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, notFound("event %d", in.EventID)
	}
	if err != nil {
		return nil, storage("load event", err)
	}
	if in.Quantity > ev.AvailableSeats {
		return nil, insufficient(in.Quantity, ev.AvailableSeats)
	}

	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	t, err := s.newTicket(in)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		var retryable bool
		retryable, err = s.reserve(ctx, t)
		if err == nil || !retryable || attempt >= s.maxAttempts {
			break
		}
		metrics.PurchaseRetries.Inc()
		s.log.Warn("purchase: retrying after transient storage error",
			zap.Uint64("event_id", t.EventID), zap.Int("attempt", attempt), zap.Error(err))
		if werr := sleepCtx(ctx, time.Duration(attempt)*s.retryBackoff); werr != nil {
			return nil, storage("purchase", werr)
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrSeatsUnavailable):
		return nil, insufficient(in.Quantity, -1)
	case errors.Is(err, repository.ErrEventNotFound):
		return nil, notFound("event %d", in.EventID)
	default:
		return nil, storage("purchase", err)
	}

	metrics.SeatsSold.Add(float64(t.Quantity))
	s.log.Info("ticket purchased",
		zap.String("ticket_id", t.ID), zap.Uint64("event_id", t.EventID), zap.Int("quantity", t.Quantity))
	return t, nil
}

// reserve performs the seat decrement and the ticket insert as one unit.
// retryable reports whether the whole unit may be attempted again.
func (s *ReservationService) reserve(ctx context.Context, t *model.Ticket) (retryable bool, err error) {
	if s.tx != nil {
		err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
			if err := s.events.DecrementSeats(txCtx, t.EventID, t.Quantity); err != nil {
				return err
			}
			return s.tickets.Create(txCtx, t)
		})
		return errors.Is(err, repository.ErrRetryable), err
	}

	if err := s.events.DecrementSeats(ctx, t.EventID, t.Quantity); err != nil {
		return errors.Is(err, repository.ErrRetryable), err
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		restored := s.releaseSeats(ctx, t, err)
		return restored && errors.Is(err, repository.ErrRetryable), err
	}
	return false, nil
}

// releaseSeats gives back the seats of a ticket that was never stored.  It
// runs on a context detached from the caller so a cancelled request still
// compensates.  Returns true when the seats are back in the event.
func (s *ReservationService) releaseSeats(ctx context.Context, t *model.Ticket, cause error) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("ticket_id", t.ID), zap.Uint64("event_id", t.EventID),
		zap.Int("quantity", t.Quantity), zap.NamedError("cause", cause),
	}
	err := s.events.IncrementSeats(ctx, t.EventID, t.Quantity)
	if err == nil {
		metrics.SeatReleases.WithLabelValues(metrics.ReleaseRestored).Inc()
		s.log.Warn("purchase: ticket write failed, seats restored", fields...)
		return true
	}
	fields = append(fields, zap.NamedError("release_error", err))

	if s.reconciler != nil {
		qerr := s.reconciler.ReleaseSeats(ctx, model.SeatRelease{
			TicketID:    t.ID,
			EventID:     t.EventID,
			Quantity:    t.Quantity,
			Reason:      cause.Error(),
			RequestedAt: s.clock.Now(),
		})
		if qerr == nil {
			metrics.SeatReleases.WithLabelValues(metrics.ReleaseQueued).Inc()
			s.log.Warn("purchase: ticket write failed, seat release queued", fields...)
			return false
		}
		fields = append(fields, zap.NamedError("queue_error", qerr))
	}

	metrics.SeatReleases.WithLabelValues(metrics.ReleaseLost).Inc()
	s.log.Error("purchase: seats decremented without a ticket, manual repair needed", fields...)
	return false
}

func (s *ReservationService) newTicket(in PurchaseInput) (*model.Ticket, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, storage("generate ticket id", err)
	}
	now := s.clock.Now()
	payload, err := json.Marshal(model.QRContent{
		TicketID:      id.String(),
		EventID:       in.EventID,
		CustomerEmail: in.CustomerEmail,
		Quantity:      in.Quantity,
		IssuedAt:      now,
	})
	if err != nil {
		return nil, storage("encode qr payload", err)
	}
	return &model.Ticket{
		ID:            id.String(),
		EventID:       in.EventID,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		Quantity:      in.Quantity,
		QRPayload:     string(payload),
		PurchasedAt:   now,
	}, nil
}

// GetTicket returns a ticket together with its event.
func (s *ReservationService) GetTicket(ctx context.Context, id string) (*model.TicketDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, notFound("ticket %q", id)
	}
	d, err := s.tickets.GetByID(ctx, id)
	if errors.Is(err, repository.ErrTicketNotFound) || errors.Is(err, repository.ErrEventNotFound) {
		return nil, notFound("ticket %q", id)
	}
	if err != nil {
		return nil, storage("load ticket", err)
	}
	return d, nil
}

// ListTickets returns every ticket sold for an event.
func (s *ReservationService) ListTickets(ctx context.Context, eventID uint64) ([]model.Ticket, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, notFound("event %d", eventID)
		}
		return nil, storage("load event", err)
	}
	ts, err := s.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, storage("list tickets", err)
	}
	return ts, nil
}

// insufficient builds the error for a purchase that cannot be served.
// available < 0 means the count is unknown (a race lost at the write).
func insufficient(requested, available int) error {
	if available < 0 {
		return fmt.Errorf("%w: not enough seats available", ErrInsufficientInventory)
	}
	return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientInventory, requested, available)
}

func purchaseResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrInsufficientInventory):
		return metrics.ResultSoldOut
	case errors.Is(err, ErrInvalidInput):
		return metrics.ResultInvalid
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	}
	return metrics.ResultStorageError
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
