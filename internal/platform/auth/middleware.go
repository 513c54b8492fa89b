package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims carried by staff bearer tokens.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// JWTMiddleware validates HS256 bearer tokens issued by the clinic's main
// backend and puts the user ID and roles on the echo context. Requests
// without a valid token are rejected; route-level role checks are done by
// RequireRole.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("user_id", claims.Subject)
			c.Set("user_roles", claims.Roles)
			return next(c)
		}
	}
}

// DevAuthMiddleware grants every request an admin identity. Development
// mode only; config.Validate refuses to run other environments without a
// JWT secret.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "dev-user")
			c.Set("user_roles", []string{"admin"})
			return next(c)
		}
	}
}

// RequireRole returns middleware that rejects requests whose token carries
// none of the given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles, _ := c.Get("user_roles").([]string)
			for _, r := range userRoles {
				if allowed[r] {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// UserID returns the authenticated user ID from the echo context, or ""
// for unauthenticated requests.
func UserID(c echo.Context) string {
	uid, _ := c.Get("user_id").(string)
	return uid
}
