package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/service"
)

// EventHandler serves the public event catalogue and the admin event
// management endpoints.
type EventHandler struct {
	Events  *service.EventService
	Tickets *service.ReservationService
	Log     *zap.Logger
}

func NewEventHandler(events *service.EventService, tickets *service.ReservationService, log *zap.Logger) *EventHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventHandler{Events: events, Tickets: tickets, Log: log}
}

// ListEvents returns every event, optionally filtered by ?category=.
// Response JSON contains an "items" array.
func (h *EventHandler) ListEvents(c echo.Context) error {
	f := model.EventFilter{Category: strings.ToLower(strings.TrimSpace(c.QueryParam("category")))}
	events, err := h.Events.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": events})
}

// GetEvent returns one event with its current seat availability.
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ev, err := h.Events.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// CreateEvent publishes a new event; all seats start available.
func (h *EventHandler) CreateEvent(c echo.Context) error {
	var in model.EventInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	ev, err := h.Events.Create(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// UpdateEvent applies a partial update.  PUT and PATCH share it: fields
// absent from the body are left unchanged.
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var p model.EventPatch
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid body")
	}
	ev, err := h.Events.Update(c.Request().Context(), id, p)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// DeleteEvent removes an event that has no tickets.
func (h *EventHandler) DeleteEvent(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	if err := h.Events.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListEventTickets lists the tickets sold for an event together with the
// number of seats they hold.
func (h *EventHandler) ListEventTickets(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	tickets, err := h.Tickets.ListTickets(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	seats := lo.SumBy(tickets, func(t model.Ticket) int { return t.Quantity })
	return c.JSON(http.StatusOK, echo.Map{"items": tickets, "seats_sold": seats})
}
