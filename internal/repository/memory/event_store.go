// Package memory provides in-process stores with the same contracts as the
// MySQL repositories.  The event and ticket stores are independent: there is
// no transaction spanning both, which is exactly the case the reservation
// service compensates for.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
)

// EventStore keeps events in a map guarded by one mutex.  Seat counts only
// change inside the lock, so check and subtract are one step.
type EventStore struct {
	mu     sync.RWMutex
	nextID uint64
	events map[uint64]*model.Event
	now    func() time.Time
}

func NewEventStore() *EventStore {
	return &EventStore{
		events: make(map[uint64]*model.Event),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source.  Returns s for chaining.
func (s *EventStore) WithClock(now func() time.Time) *EventStore {
	s.now = now
	return s
}

func (s *EventStore) Create(ctx context.Context, in model.EventInput) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now()
	e := &model.Event{
		ID:             s.nextID,
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		Date:           in.Date.UTC(),
		Location:       in.Location,
		PriceCents:     in.PriceCents,
		TotalSeats:     in.TotalSeats,
		AvailableSeats: in.TotalSeats,
		ImageURL:       copyString(in.ImageURL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.events[e.ID] = e
	out := *e
	return &out, nil
}

func (s *EventStore) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	out := *e
	out.ImageURL = copyString(e.ImageURL)
	return &out, nil
}

func (s *EventStore) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		c := *e
		c.ImageURL = copyString(e.ImageURL)
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *EventStore) Update(ctx context.Context, id uint64, p model.EventPatch) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	if !p.Empty() {
		p.Apply(e)
		if p.ImageURL != nil && *p.ImageURL == "" {
			e.ImageURL = nil
		}
		e.UpdatedAt = s.now()
	}
	out := *e
	out.ImageURL = copyString(e.ImageURL)
	return &out, nil
}

func (s *EventStore) DeleteIfUnsold(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return repository.ErrEventNotFound
	}
	if e.AvailableSeats != e.TotalSeats {
		return repository.ErrConflict
	}
	delete(s.events, id)
	return nil
}

func (s *EventStore) DecrementSeats(ctx context.Context, id uint64, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return repository.ErrEventNotFound
	}
	if qty < 1 || e.AvailableSeats < qty {
		return repository.ErrSeatsUnavailable
	}
	e.AvailableSeats -= qty
	e.UpdatedAt = s.now()
	return nil
}

// IncrementSeats ignores ctx cancellation: it is the compensation path and
// must still run when the request that triggered it has gone away.
func (s *EventStore) IncrementSeats(_ context.Context, id uint64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return repository.ErrEventNotFound
	}
	if qty < 1 || e.AvailableSeats+qty > e.TotalSeats {
		return repository.ErrSeatsUnavailable
	}
	e.AvailableSeats += qty
	e.UpdatedAt = s.now()
	return nil
}

func copyString(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	v := *p
	return &v
}
