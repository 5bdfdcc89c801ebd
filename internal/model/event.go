package model

import "time"

// Event categories accepted by the catalogue.
const (
	CategoryCinema   = "cinema"
	CategoryFootball = "football"
	CategoryConcert  = "concert"
)

// Categories lists every valid category in display order.
var Categories = []string{CategoryCinema, CategoryFootball, CategoryConcert}

// Event is a ticketed happening with a fixed seat inventory, stored in
// the `events` table.  Unlike the other models it carries json tags
// because handlers return it as-is.
//
// Fields:
//
//	ID             - primary key identifier.
//	Title          - display title, never empty.
//	Description    - free text.
//	Category       - one of cinema, football, concert.
//	Date           - when the event takes place (UTC).
//	Location       - venue.
//	PriceCents     - price of one seat in cents.
//	TotalSeats     - capacity, fixed once the event is created.
//	AvailableSeats - seats not yet sold; 0 <= AvailableSeats <= TotalSeats.
//	ImageURL       - optional poster image.
type Event struct {
	ID             uint64    `json:"id"`                  // events.id
	Title          string    `json:"title"`               // events.title
	Description    string    `json:"description"`         // events.description
	Category       string    `json:"category"`            // events.category
	Date           time.Time `json:"date"`                // events.starts_at
	Location       string    `json:"location"`            // events.location
	PriceCents     int64     `json:"price_cents"`         // events.price_cents
	TotalSeats     int       `json:"total_seats"`         // events.total_seats
	AvailableSeats int       `json:"available_seats"`     // events.available_seats
	ImageURL       *string   `json:"image_url,omitempty"` // events.image_url (nullable)
	CreatedAt      time.Time `json:"created_at"`          // events.created_at
	UpdatedAt      time.Time `json:"updated_at"`          // events.updated_at
}

// SoldSeats is the number of seats taken by tickets.
func (e Event) SoldSeats() int { return e.TotalSeats - e.AvailableSeats }

// EventInput carries the fields needed to create an event.  Available
// seats are not part of it: a new event always starts fully available.
type EventInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=10000"`
	Category    string    `json:"category" validate:"required,oneof=cinema football concert"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location" validate:"required,max=200"`
	PriceCents  int64     `json:"price_cents" validate:"gte=0"`
	TotalSeats  int       `json:"total_seats" validate:"gt=0,lte=1000000"`
	ImageURL    *string   `json:"image_url,omitempty"`
}

// EventPatch is a partial update.  A nil pointer means "leave unchanged";
// a non-nil pointer is applied even when it points at a zero value, so a
// price can be set to 0 and a description can be cleared.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Location    *string    `json:"location,omitempty"`
	PriceCents  *int64     `json:"price_cents,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`

	// Never applied.  Present so that a request trying to change seat
	// counts is refused instead of silently ignored.
	TotalSeats     *int `json:"total_seats,omitempty"`
	AvailableSeats *int `json:"available_seats,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Date == nil &&
		p.Location == nil && p.PriceCents == nil && p.ImageURL == nil
}

// Apply copies every provided field onto e.
func (p EventPatch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = p.Date.UTC()
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.PriceCents != nil {
		e.PriceCents = *p.PriceCents
	}
	if p.ImageURL != nil {
		v := *p.ImageURL
		e.ImageURL = &v
	}
}

// EventFilter narrows List.  Zero value lists everything.
type EventFilter struct {
	Category string
}
