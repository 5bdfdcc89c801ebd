package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/eventhub-tickets/internal/model"
)

const eventColumns = `id, title, description, category, starts_at, location, price_cents, total_seats, available_seats, image_url, created_at, updated_at`

const (
	qInsertEvent = `INSERT INTO events (title, description, category, starts_at, location, price_cents, total_seats, available_seats, image_url) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	qEventByID   = `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	qEventExists = `SELECT COUNT(*) FROM events WHERE id = ?`
	// The conditional decrement is the whole oversell guard: the row lock taken
	// by UPDATE serialises concurrent buyers and the WHERE clause refuses any
	// write that would take available_seats below zero.
	qDecrementSeats = `UPDATE events SET available_seats = available_seats - ? WHERE id = ? AND available_seats >= ?`
	qIncrementSeats = `UPDATE events SET available_seats = available_seats + ? WHERE id = ? AND available_seats + ? <= total_seats`
	qDeleteUnsold   = `DELETE FROM events WHERE id = ? AND available_seats = total_seats`
)

// EventRepo manages persistence for events.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (*model.Event, error) {
	var (
		e   model.Event
		img sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Title, &e.Description, &e.Category, &e.Date, &e.Location,
		&e.PriceCents, &e.TotalSeats, &e.AvailableSeats, &img, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if img.Valid {
		v := img.String
		e.ImageURL = &v
	}
	e.Date = e.Date.UTC()
	return &e, nil
}

// Create inserts a new event with every seat available and returns the
// stored row.
func (r *EventRepo) Create(ctx context.Context, in model.EventInput) (*model.Event, error) {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, qInsertEvent,
		in.Title, in.Description, in.Category, in.Date.UTC(), in.Location,
		in.PriceCents, in.TotalSeats, in.TotalSeats, nullString(in.ImageURL))
	if err != nil {
		return nil, classify(fmt.Errorf("insert event: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID retrieves an event by its ID.  It returns ErrEventNotFound if
// there is no matching row.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := scanEvent(conn(ctx, r.db).QueryRowContext(ctx, qEventByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get event %d: %w", id, err))
	}
	return e, nil
}

// List returns events ordered by date, optionally restricted to a category.
func (r *EventRepo) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if f.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY starts_at, id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err))
	}
	return out, nil
}

// Update applies the provided fields of p and returns the stored row.
// Seat counts are never touched here.
func (r *EventRepo) Update(ctx context.Context, id uint64, p model.EventPatch) (*model.Event, error) {
	sets, args := patchSet(p)
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}
	args = append(args, id)
	query := `UPDATE events SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return nil, classify(fmt.Errorf("update event %d: %w", id, err))
	}
	// MySQL reports 0 affected rows when the values did not change, so
	// existence is settled by the read.
	return r.GetByID(ctx, id)
}

// patchSet turns the provided fields into SET fragments, in column order.
func patchSet(p model.EventPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Date != nil {
		add("starts_at", p.Date.UTC())
	}
	if p.Location != nil {
		add("location", *p.Location)
	}
	if p.PriceCents != nil {
		add("price_cents", *p.PriceCents)
	}
	if p.ImageURL != nil {
		add("image_url", nullString(p.ImageURL))
	}
	return sets, args
}

// DeleteIfUnsold removes the event only while no seat has been sold.  It
// returns ErrConflict when tickets exist and ErrEventNotFound when the row
// is missing.
func (r *EventRepo) DeleteIfUnsold(ctx context.Context, id uint64) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, qDeleteUnsold, id)
	if err != nil {
		return classify(fmt.Errorf("delete event %d: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	return r.refusal(ctx, q, id, ErrConflict)
}

// DecrementSeats atomically takes qty seats from the event.  It returns
// ErrSeatsUnavailable when fewer than qty remain and ErrEventNotFound when
// the event does not exist.
func (r *EventRepo) DecrementSeats(ctx context.Context, id uint64, qty int) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, qDecrementSeats, qty, id, qty)
	if err != nil {
		return classify(fmt.Errorf("decrement seats of event %d: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement seats of event %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	return r.refusal(ctx, q, id, ErrSeatsUnavailable)
}

// IncrementSeats gives qty seats back, never exceeding total_seats.
func (r *EventRepo) IncrementSeats(ctx context.Context, id uint64, qty int) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, qIncrementSeats, qty, id, qty)
	if err != nil {
		return classify(fmt.Errorf("increment seats of event %d: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment seats of event %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	return r.refusal(ctx, q, id, ErrSeatsUnavailable)
}

// refusal explains a conditional write that touched no row: either the
// event is gone or the condition did not hold, in which case refused is
// returned.
func (r *EventRepo) refusal(ctx context.Context, q querier, id uint64, refused error) error {
	var count int
	if err := q.QueryRowContext(ctx, qEventExists, id).Scan(&count); err != nil {
		return classify(fmt.Errorf("check event %d: %w", id, err))
	}
	if count == 0 {
		return ErrEventNotFound
	}
	return refused
}

func nullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
