package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository/memory"
	"github.com/iliyamo/eventhub-tickets/internal/seed"
	"github.com/iliyamo/eventhub-tickets/internal/service"
)

func TestDemoEventsAreValid(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	svc := service.NewEventService(memory.NewEventStore(), nil, nil)

	seen := map[string]bool{}
	for _, in := range seed.DemoEvents(now) {
		ev, err := svc.Create(context.Background(), in)
		require.NoError(t, err, in.Title)
		assert.True(t, ev.Date.After(now), "%s is in the past", in.Title)
		assert.Equal(t, ev.TotalSeats, ev.AvailableSeats)
		seen[ev.Category] = true
	}
	for _, c := range model.Categories {
		assert.True(t, seen[c], "no demo event for %s", c)
	}
}

func TestImportEvents(t *testing.T) {
	store := memory.NewEventStore()
	created, err := seed.ImportEvents(context.Background(), store, time.Now())
	require.NoError(t, err)
	assert.Len(t, created, len(seed.DemoEvents(time.Now())))

	all, err := store.List(context.Background(), model.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, len(created))
}

func TestImportAdminIsIdempotent(t *testing.T) {
	users := memory.NewUserStore()
	created, err := seed.ImportAdmin(context.Background(), users, seed.DefaultAdminUsername, seed.DefaultAdminPassword, 4)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = seed.ImportAdmin(context.Background(), users, "ADMIN", "other", 4)
	require.NoError(t, err)
	assert.False(t, created)

	u, err := users.GetByUsername(context.Background(), seed.DefaultAdminUsername)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
}
