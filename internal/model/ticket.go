package model

import "time"

// Ticket is a completed purchase of Quantity seats of one event, stored
// in the `tickets` table.  Tickets are immutable; the existence of a
// ticket implies the event's available seats were reduced by Quantity.
//
// Fields:
//
//	ID            - UUID string.
//	EventID       - purchased event.
//	CustomerName  - buyer name.
//	CustomerEmail - buyer email.
//	Quantity      - number of seats, at least 1.
//	QRPayload     - opaque string encoded in the QR image.
//	PurchasedAt   - creation time.
type Ticket struct {
	ID            string    `json:"id"`             // tickets.id
	EventID       uint64    `json:"event_id"`       // tickets.event_id
	CustomerName  string    `json:"customer_name"`  // tickets.customer_name
	CustomerEmail string    `json:"customer_email"` // tickets.customer_email
	Quantity      int       `json:"quantity"`       // tickets.quantity
	QRPayload     string    `json:"qr_payload"`     // tickets.qr_payload
	PurchasedAt   time.Time `json:"purchased_at"`   // tickets.purchased_at
}

// TicketDetail is a ticket joined with its event, as shown to the buyer
// and rendered into the PDF.
type TicketDetail struct {
	Ticket
	Event Event `json:"event"`
}

// TotalCents is the amount paid for the ticket at the event's current price.
func (d TicketDetail) TotalCents() int64 { return d.Event.PriceCents * int64(d.Quantity) }

// QRContent is the JSON document stored in Ticket.QRPayload.  IssuedAt
// keeps two otherwise identical purchases from sharing a code.
type QRContent struct {
	TicketID      string    `json:"ticket_id"`
	EventID       uint64    `json:"event_id"`
	CustomerEmail string    `json:"customer_email"`
	Quantity      int       `json:"quantity"`
	IssuedAt      time.Time `json:"issued_at"`
}

// SeatRelease asks for Quantity seats of EventID to be given back after a
// ticket write failed.  It travels over the seat release queue.
type SeatRelease struct {
	TicketID    string    `json:"ticket_id"`
	EventID     uint64    `json:"event_id"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
