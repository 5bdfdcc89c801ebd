package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
)

// EventRepository is the catalogue side of the event store.
type EventRepository interface {
	Create(ctx context.Context, in model.EventInput) (*model.Event, error)
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	Update(ctx context.Context, id uint64, p model.EventPatch) (*model.Event, error)
	DeleteIfUnsold(ctx context.Context, id uint64) error
}

// CachePurger drops cached public responses after the catalogue changes.
type CachePurger interface {
	Purge(ctx context.Context) error
}

// EventService validates and applies catalogue changes made by admins.
// It never changes seat counts.
type EventService struct {
	repo   EventRepository
	purger CachePurger
	log    *zap.Logger
}

func NewEventService(repo EventRepository, purger CachePurger, log *zap.Logger) *EventService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventService{repo: repo, purger: purger, log: log}
}

// Create stores a new event with every seat available.
func (s *EventService) Create(ctx context.Context, in model.EventInput) (*model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, invalid("date: is required")
	}
	if in.ImageURL != nil {
		v := strings.TrimSpace(*in.ImageURL)
		if v != "" && !validImageURL(v) {
			return nil, invalid("image_url: must be an absolute http(s) URL")
		}
		in.ImageURL = &v
	}

	ev, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, storage("create event", err)
	}
	s.log.Info("event created", zap.Uint64("event_id", ev.ID), zap.Int("total_seats", ev.TotalSeats))
	s.purge(ctx)
	return ev, nil
}

func (s *EventService) Get(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, notFound("event %d", id)
	}
	if err != nil {
		return nil, storage("load event", err)
	}
	return ev, nil
}

// List returns events ordered by date.  An unknown category is invalid
// input rather than an empty list.
func (s *EventService) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	if f.Category != "" && !lo.Contains(model.Categories, f.Category) {
		return nil, invalid("category: must be one of %s", strings.Join(model.Categories, ", "))
	}
	evs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, storage("list events", err)
	}
	return evs, nil
}

// Update applies the provided fields.  A provided zero value is applied
// like any other value.  Seat counts cannot be changed.
func (s *EventService) Update(ctx context.Context, id uint64, p model.EventPatch) (*model.Event, error) {
	if err := validatePatch(&p); err != nil {
		return nil, err
	}
	ev, err := s.repo.Update(ctx, id, p)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, notFound("event %d", id)
	}
	if err != nil {
		return nil, storage("update event", err)
	}
	if !p.Empty() {
		s.log.Info("event updated", zap.Uint64("event_id", id))
		s.purge(ctx)
	}
	return ev, nil
}

func validatePatch(p *model.EventPatch) error {
	if p.TotalSeats != nil {
		return invalid("total_seats: is fixed once the event is created")
	}
	if p.AvailableSeats != nil {
		return invalid("available_seats: changes only through ticket purchases")
	}
	var problems []string
	if p.Title != nil {
		v := strings.TrimSpace(*p.Title)
		p.Title = &v
		if v == "" || len(v) > 200 {
			problems = append(problems, "title: must be 1 to 200 characters")
		}
	}
	if p.Description != nil && len(*p.Description) > 10000 {
		problems = append(problems, "description: must be at most 10000 long")
	}
	if p.Category != nil {
		v := strings.ToLower(strings.TrimSpace(*p.Category))
		p.Category = &v
		if !lo.Contains(model.Categories, v) {
			problems = append(problems, "category: must be one of "+strings.Join(model.Categories, ", "))
		}
	}
	if p.Date != nil && p.Date.IsZero() {
		problems = append(problems, "date: must be a valid time")
	}
	if p.Location != nil {
		v := strings.TrimSpace(*p.Location)
		p.Location = &v
		if v == "" || len(v) > 200 {
			problems = append(problems, "location: must be 1 to 200 characters")
		}
	}
	if p.PriceCents != nil && *p.PriceCents < 0 {
		problems = append(problems, "price_cents: must be at least 0")
	}
	if p.ImageURL != nil {
		v := strings.TrimSpace(*p.ImageURL)
		p.ImageURL = &v
		if v != "" && !validImageURL(v) {
			problems = append(problems, "image_url: must be an absolute http(s) URL")
		}
	}
	if len(problems) > 0 {
		return invalid("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Delete removes an event that has no tickets.  Events with sold seats are
// kept so that every ticket keeps its event; the caller gets ErrConflict.
func (s *EventService) Delete(ctx context.Context, id uint64) error {
	err := s.repo.DeleteIfUnsold(ctx, id)
	switch {
	case err == nil:
		s.log.Info("event deleted", zap.Uint64("event_id", id))
		s.purge(ctx)
		return nil
	case errors.Is(err, repository.ErrEventNotFound):
		return notFound("event %d", id)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: event %d has sold tickets and cannot be deleted", ErrConflict, id)
	}
	return storage("delete event", err)
}

func (s *EventService) purge(ctx context.Context) {
	if s.purger == nil {
		return
	}
	if err := s.purger.Purge(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("cache purge failed", zap.Error(err))
	}
}
