package middleware // reusable HTTP middleware for the gate service

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// BearerAuth returns an Echo middleware that validates the bearer token
// attached by callers of the gate endpoints and injects the token's
// subject (the API client id) and role claims into the request context.
// The provided secret must match the one used when issuing tokens.
// Handlers read the caller identity via c.Get("client_id") and
// c.Get("role").  Error bodies follow the gate contract: a JSON object
// with a single `detail` field.
func BearerAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				// Reject any signing method other than HMAC.
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid claims"})
			}

			c.Set("client_id", claims["sub"])
			c.Set("role", claims["role"])
			return next(c)
		}
	}
}

// RequireRole returns middleware that rejects authenticated callers
// whose role claim is not in the allowed set.  Gate issuance is limited
// to the scheduler role; status/confirm/cancel accept any client.
func RequireRole(allowed ...string) echo.MiddlewareFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("role").(string)
			if _, ok := set[role]; !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"detail": "insufficient role"})
			}
			return next(c)
		}
	}
}
