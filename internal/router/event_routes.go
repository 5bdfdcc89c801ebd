package router

import (
	"github.com/labstack/echo/v4"
)

// registerEvents wires the public catalogue (cached) and the admin
// management endpoints.  Middleware is attached per route so an unknown
// path under /v1 still answers 404 rather than 401.
func registerEvents(e *echo.Echo, d Deps) {
	h := d.Events
	var cached []echo.MiddlewareFunc
	if d.Cache != nil {
		cached = append(cached, d.Cache.Middleware())
	}
	e.GET("/v1/events", h.ListEvents, cached...)
	e.GET("/v1/events/:id", h.GetEvent, cached...)

	admin := adminOnly(d.JWTSecret)
	e.POST("/v1/events", h.CreateEvent, admin...)
	e.PUT("/v1/events/:id", h.UpdateEvent, admin...)
	e.PATCH("/v1/events/:id", h.UpdateEvent, admin...)
	e.DELETE("/v1/events/:id", h.DeleteEvent, admin...)
	e.GET("/v1/events/:id/tickets", h.ListEventTickets, admin...)
}
