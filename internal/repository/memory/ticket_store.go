package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
)

// TicketStore keeps tickets under its own lock.  Reads of the joined event
// go through the EventStore.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]model.Ticket
	events  *EventStore
}

func NewTicketStore(events *EventStore) *TicketStore {
	return &TicketStore{tickets: make(map[string]model.Ticket), events: events}
}

func (s *TicketStore) Create(ctx context.Context, t *model.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.events.GetByID(ctx, t.EventID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tickets[t.ID]; dup {
		return fmt.Errorf("ticket %s: %w", t.ID, repository.ErrConflict)
	}
	s.tickets[t.ID] = *t
	return nil
}

func (s *TicketStore) GetByID(ctx context.Context, id string) (*model.TicketDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	t, ok := s.tickets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	e, err := s.events.GetByID(ctx, t.EventID)
	if err != nil {
		return nil, err
	}
	return &model.TicketDetail{Ticket: t, Event: *e}, nil
}

func (s *TicketStore) ListByEvent(ctx context.Context, eventID uint64) ([]model.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := []model.Ticket{}
	for _, t := range s.tickets {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Count returns the number of stored tickets.
func (s *TicketStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}
