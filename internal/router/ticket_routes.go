package router

import (
	"github.com/labstack/echo/v4"
)

// registerTickets wires purchase and the ticket artifacts.  Purchases are
// anonymous, so only the rate limiter stands in front of them.
func registerTickets(e *echo.Echo, d Deps) {
	h := d.Tickets
	var limited []echo.MiddlewareFunc
	if d.RateLimit != nil {
		limited = append(limited, d.RateLimit)
	}
	e.POST("/v1/tickets", h.Purchase, limited...)
	e.GET("/v1/tickets/:id", h.GetTicket)
	e.GET("/v1/tickets/:id/qr", h.TicketQR)
	e.GET("/v1/tickets/:id/download", h.DownloadTicket)
}
