package middleware // reusable HTTP middleware for the booking API

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

// JWTAuth returns an Echo middleware that requires a valid access token and
// stores the caller as a model.Actor on the context.  Requests without a
// token, or with one that fails verification, get 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			actor, ok := parseActor(secret, raw)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			SetActor(c, actor)
			return next(c)
		}
	}
}

// OptionalJWT is JWTAuth for routes guests may use as well: the seat map,
// the viewer list and the realtime socket.  A missing token leaves the
// caller a guest; a bad token is still rejected so clients notice expiry.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return next(c)
			}
			actor, ok := parseActor(secret, raw)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			SetActor(c, actor)
			return next(c)
		}
	}
}

// bearerToken reads the token from the Authorization header, falling back
// to the "token" query parameter because browsers cannot set headers on a
// websocket handshake.
func bearerToken(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.QueryParam("token"))
}

func parseActor(secret, raw string) (model.Actor, bool) {
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return model.Actor{}, false
	}
	role := strings.ToUpper(claims.Role)
	if role == "" {
		role = model.RoleCustomer
	}
	return model.Actor{UserID: claims.Subject, Role: role, Name: claims.Name, Email: claims.Email}, true
}
