package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/eventhub-tickets/internal/handler"
	"github.com/iliyamo/eventhub-tickets/internal/middleware"
	"github.com/iliyamo/eventhub-tickets/internal/model"
)

// Deps is everything the routes need.  Cache and RateLimit may be nil;
// the routes are then served without them.
type Deps struct {
	JWTSecret string
	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Events    *handler.EventHandler
	Tickets   *handler.TicketHandler
	Cache     *middleware.ResponseCache
	RateLimit echo.MiddlewareFunc
}

// RegisterRoutes registers every route of the API on e.
func RegisterRoutes(e *echo.Echo, d Deps) {
	// Health checks and scraping live outside /v1.
	e.GET("/healthz", d.Health.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	registerAuth(e, d.Auth, d.JWTSecret)
	registerEvents(e, d)
	registerTickets(e, d)
}

// registerAuth registers the token endpoints under /v1/auth, the
// protected /v1/me and admin account creation.  Logout needs no access token: a refresh token in the
// body is enough.
func registerAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
	e.POST("/v1/users", a.Register, adminOnly(jwtSecret)...)
}

// adminOnly is the middleware chain of every management endpoint.
func adminOnly(jwtSecret string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	}
}
