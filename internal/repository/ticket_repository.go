package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/eventhub-tickets/internal/model"
)

// errNoReferencedRow: the ticket points at an event that does not exist.
const errNoReferencedRow = 1452

const ticketColumns = `id, event_id, customer_name, customer_email, quantity, qr_payload, purchased_at`

const (
	qInsertTicket = `INSERT INTO tickets (` + ticketColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	qTicketDetail = `SELECT t.id, t.event_id, t.customer_name, t.customer_email, t.quantity, t.qr_payload, t.purchased_at,
       e.id, e.title, e.description, e.category, e.starts_at, e.location, e.price_cents, e.total_seats, e.available_seats, e.image_url, e.created_at, e.updated_at
FROM tickets t JOIN events e ON e.id = t.event_id
WHERE t.id = ?`
	qTicketsByEvent = `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = ? ORDER BY purchased_at, id`
)

// TicketRepo manages persistence for tickets.  Tickets are insert-only.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// Create inserts t.  Inside a TxManager transaction it commits together
// with the seat decrement.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, qInsertTicket,
		t.ID, t.EventID, t.CustomerName, t.CustomerEmail, t.Quantity, t.QRPayload, t.PurchasedAt.UTC())
	if err != nil {
		if mysqlCode(err) == errNoReferencedRow {
			return ErrEventNotFound
		}
		return classify(fmt.Errorf("insert ticket: %w", err))
	}
	return nil
}

// GetByID returns the ticket joined with its event, or ErrTicketNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (*model.TicketDetail, error) {
	var (
		d   model.TicketDetail
		img sql.NullString
	)
	e := &d.Event
	err := conn(ctx, r.db).QueryRowContext(ctx, qTicketDetail, id).Scan(
		&d.ID, &d.EventID, &d.CustomerName, &d.CustomerEmail, &d.Quantity, &d.QRPayload, &d.PurchasedAt,
		&e.ID, &e.Title, &e.Description, &e.Category, &e.Date, &e.Location, &e.PriceCents,
		&e.TotalSeats, &e.AvailableSeats, &img, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get ticket %s: %w", id, err))
	}
	if img.Valid {
		v := img.String
		e.ImageURL = &v
	}
	d.PurchasedAt = d.PurchasedAt.UTC()
	e.Date = e.Date.UTC()
	return &d, nil
}

// ListByEvent returns the tickets of one event in purchase order.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Ticket, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, qTicketsByEvent, eventID)
	if err != nil {
		return nil, classify(fmt.Errorf("list tickets of event %d: %w", eventID, err))
	}
	defer rows.Close()

	out := []model.Ticket{}
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.EventID, &t.CustomerName, &t.CustomerEmail, &t.Quantity, &t.QRPayload, &t.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.PurchasedAt = t.PurchasedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list tickets of event %d: %w", eventID, err))
	}
	return out, nil
}
