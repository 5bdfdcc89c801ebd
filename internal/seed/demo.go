// Package seed holds the demo catalogue and the default administrator used
// by the seeder command and by the in-memory driver.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
)

// Default administrator credentials created by `seeder import`.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin"
)

func ptr[T any](v T) *T { return &v }

// DemoEvents returns five sample events scheduled relative to now.  Every
// event starts with all seats available.
func DemoEvents(now time.Time) []model.EventInput {
	day := func(n int, hour int) time.Time {
		d := now.UTC().AddDate(0, 0, n)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
	}
	return []model.EventInput{
		{
			Title:       "Grand Rock Concert",
			Description: "An evening of classic and modern rock with a full stage show.",
			Category:    model.CategoryConcert,
			Date:        day(14, 20),
			Location:    "Madison Square Garden, New York",
			PriceCents:  8999,
			TotalSeats:  500,
			ImageURL:    ptr("https://images.unsplash.com/photo-1470229722913-7c0e2dbbafd3"),
		},
		{
			Title:       "Champions League Final",
			Description: "The final match of the season, live in the stadium.",
			Category:    model.CategoryFootball,
			Date:        day(30, 19),
			Location:    "Wembley Stadium, London",
			PriceCents:  15000,
			TotalSeats:  1000,
			ImageURL:    ptr("https://images.unsplash.com/photo-1574629810360-7efbbe195018"),
		},
		{
			Title:       "Sci-Fi Movie Premiere",
			Description: "Premiere screening followed by a talk with the cast.",
			Category:    model.CategoryCinema,
			Date:        day(7, 21),
			Location:    "AMC Empire 25, New York",
			PriceCents:  2500,
			TotalSeats:  200,
			ImageURL:    ptr("https://images.unsplash.com/photo-1489599849927-2ee91cede3ba"),
		},
		{
			Title:       "Jazz Night at Blue Note",
			Description: "Live jazz quartet in an intimate club setting.",
			Category:    model.CategoryConcert,
			Date:        day(10, 22),
			Location:    "Blue Note Jazz Club, New York",
			PriceCents:  4500,
			TotalSeats:  150,
		},
		{
			Title:       "World Cup Qualifier",
			Description: "National team qualifier match.",
			Category:    model.CategoryFootball,
			Date:        day(21, 18),
			Location:    "MetLife Stadium, New Jersey",
			PriceCents:  7500,
			TotalSeats:  800,
		},
	}
}

// EventCreator is satisfied by both event stores.
type EventCreator interface {
	Create(ctx context.Context, in model.EventInput) (*model.Event, error)
}

// UserCreator is satisfied by both user stores.
type UserCreator interface {
	Create(ctx context.Context, username, password, role string, cost int) (uint64, error)
}

// ImportEvents stores the demo catalogue and returns the created events.
func ImportEvents(ctx context.Context, store EventCreator, now time.Time) ([]model.Event, error) {
	var out []model.Event
	for _, in := range DemoEvents(now) {
		e, err := store.Create(ctx, in)
		if err != nil {
			return out, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// ImportAdmin creates the administrator account.  created is false when the
// username was already taken; that is not an error.
func ImportAdmin(ctx context.Context, users UserCreator, username, password string, cost int) (created bool, err error) {
	_, err = users.Create(ctx, username, password, model.RoleAdmin, cost)
	if errors.Is(err, repository.ErrUsernameExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
