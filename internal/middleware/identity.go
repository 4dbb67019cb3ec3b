package middleware

// identity.go stores the authenticated caller on the Echo context so
// handlers, the rate limiter and the request logger read it the same way.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/model"
)

const actorKey = "actor"

// SetActor stores the caller on c.
func SetActor(c echo.Context, a model.Actor) {
	c.Set(actorKey, a)
}

// ActorFrom returns the caller stored by JWTAuth or OptionalJWT.  Requests
// that carried no token yield the zero Actor, a guest.
func ActorFrom(c echo.Context) model.Actor {
	if a, ok := c.Get(actorKey).(model.Actor); ok {
		return a
	}
	return model.Actor{}
}

// userID returns the caller id for rate limit keys and logs, or "guest".
func userID(c echo.Context) string {
	if id := ActorFrom(c).UserID; id != "" {
		return id
	}
	return "guest"
}
