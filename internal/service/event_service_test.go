package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository/memory"
	"github.com/iliyamo/eventhub-tickets/internal/service"
)

type countingPurger struct{ n int }

func (p *countingPurger) Purge(context.Context) error {
	p.n++
	return nil
}

func validInput() model.EventInput {
	return model.EventInput{
		Title:      "Grand Rock Concert",
		Category:   model.CategoryConcert,
		Date:       baseTime.Add(24 * time.Hour),
		Location:   "Madison Square Garden",
		PriceCents: 8999,
		TotalSeats: 500,
	}
}

func ptr[T any](v T) *T { return &v }

func TestEventService_Create(t *testing.T) {
	purger := &countingPurger{}
	svc := service.NewEventService(memory.NewEventStore(), purger, nil)

	in := validInput()
	in.Category = " Concert "
	in.ImageURL = ptr("https://img.example.com/rock.jpg")
	ev, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 500, ev.TotalSeats)
	assert.Equal(t, 500, ev.AvailableSeats)
	assert.Equal(t, model.CategoryConcert, ev.Category)
	assert.Equal(t, 1, purger.n)
}

func TestEventService_CreateInvalid(t *testing.T) {
	svc := service.NewEventService(memory.NewEventStore(), nil, nil)
	tests := []struct {
		name   string
		mutate func(*model.EventInput)
	}{
		{"empty title", func(in *model.EventInput) { in.Title = "  " }},
		{"unknown category", func(in *model.EventInput) { in.Category = "opera" }},
		{"zero seats", func(in *model.EventInput) { in.TotalSeats = 0 }},
		{"negative seats", func(in *model.EventInput) { in.TotalSeats = -5 }},
		{"negative price", func(in *model.EventInput) { in.PriceCents = -1 }},
		{"missing date", func(in *model.EventInput) { in.Date = time.Time{} }},
		{"missing location", func(in *model.EventInput) { in.Location = "" }},
		{"relative image url", func(in *model.EventInput) { in.ImageURL = ptr("/img/a.png") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, service.ErrInvalidInput)
		})
	}
}

func TestEventService_CreateAllowsFreeEvents(t *testing.T) {
	svc := service.NewEventService(memory.NewEventStore(), nil, nil)
	in := validInput()
	in.PriceCents = 0
	ev, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, ev.PriceCents)
}

func TestEventService_Update(t *testing.T) {
	purger := &countingPurger{}
	svc := service.NewEventService(memory.NewEventStore(), purger, nil)
	ev, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	// a provided zero value is applied
	got, err := svc.Update(context.Background(), ev.ID, model.EventPatch{
		PriceCents:  ptr(int64(0)),
		Description: ptr(""),
		Title:       ptr("Grand Rock Concert (late show)"),
	})
	require.NoError(t, err)
	assert.Zero(t, got.PriceCents)
	assert.Equal(t, "Grand Rock Concert (late show)", got.Title)
	assert.Equal(t, ev.Location, got.Location)
	assert.Equal(t, ev.TotalSeats, got.TotalSeats)
	assert.Equal(t, 2, purger.n)

	// empty patch changes nothing and does not purge
	_, err = svc.Update(context.Background(), ev.ID, model.EventPatch{})
	require.NoError(t, err)
	assert.Equal(t, 2, purger.n)
}

func TestEventService_UpdateRejected(t *testing.T) {
	svc := service.NewEventService(memory.NewEventStore(), nil, nil)
	ev, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	tests := []struct {
		name  string
		id    uint64
		patch model.EventPatch
		want  error
	}{
		{"total seats fixed", ev.ID, model.EventPatch{TotalSeats: ptr(900)}, service.ErrInvalidInput},
		{"available seats not patchable", ev.ID, model.EventPatch{AvailableSeats: ptr(1)}, service.ErrInvalidInput},
		{"blank title", ev.ID, model.EventPatch{Title: ptr(" ")}, service.ErrInvalidInput},
		{"bad category", ev.ID, model.EventPatch{Category: ptr("theatre")}, service.ErrInvalidInput},
		{"negative price", ev.ID, model.EventPatch{PriceCents: ptr(int64(-10))}, service.ErrInvalidInput},
		{"unknown event", 777, model.EventPatch{Title: ptr("x")}, service.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tc.id, tc.patch)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	got, err := svc.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, got.TotalSeats)
	assert.Equal(t, 500, got.AvailableSeats)
}

func TestEventService_Delete(t *testing.T) {
	events := memory.NewEventStore()
	tickets := memory.NewTicketStore(events)
	svc := service.NewEventService(events, nil, nil)
	reservations := service.NewReservationService(events, tickets, nil)

	unsold, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	sold, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = reservations.Purchase(context.Background(), buy(sold.ID, 1))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), unsold.ID))
	_, err = svc.Get(context.Background(), unsold.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), sold.ID), service.ErrConflict)
	assert.ErrorIs(t, svc.Delete(context.Background(), 4242), service.ErrNotFound)
	assert.Equal(t, 1, tickets.Count())
}

func TestEventService_List(t *testing.T) {
	svc := service.NewEventService(memory.NewEventStore(), nil, nil)
	later := validInput()
	later.Date = baseTime.Add(48 * time.Hour)
	football := validInput()
	football.Category = model.CategoryFootball
	for _, in := range []model.EventInput{later, validInput(), football} {
		_, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
	}

	all, err := svc.List(context.Background(), model.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.False(t, all[2].Date.Before(all[0].Date))

	concerts, err := svc.List(context.Background(), model.EventFilter{Category: "CONCERT"})
	require.NoError(t, err)
	assert.Len(t, concerts, 2)

	_, err = svc.List(context.Background(), model.EventFilter{Category: "opera"})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}
