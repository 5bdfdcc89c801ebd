package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// Context keys written by JWTAuth and read by handlers and the limiter.
const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
	ctxRole     = "role"
)

// Identity is the authenticated caller, as established by JWTAuth.
type Identity struct {
	UserID   uint64
	Username string
	Role     string
}

// CurrentIdentity returns the caller of an authenticated request.  ok is
// false on routes without JWTAuth.
func CurrentIdentity(c echo.Context) (Identity, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	if !ok {
		return Identity{}, false
	}
	name, _ := c.Get(ctxUsername).(string)
	role, _ := c.Get(ctxRole).(string)
	return Identity{UserID: id, Username: name, Role: role}, true
}

// userKey identifies the caller for rate limiting: the user ID when
// authenticated, "anon" otherwise.
func userKey(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}

// RequireRole admits callers whose role is one of roles.  It runs after
// JWTAuth; a request without an identity is treated as unauthenticated.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			switch {
			case !ok:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required", "code": "unauthorized"})
			case !lo.Contains(roles, id.Role):
				return c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required", "code": "forbidden"})
			}
			return next(c)
		}
	}
}
