// Package auth tags each station session with a clinic role. Stations present
// an HS256 token carrying their role; the engine performs no further
// authorization beyond gating operations to the roles that may invoke them.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	StationIDKey   contextKey = "station_id"
	StationRoleKey contextKey = "station_role"
)

// Station roles. A tablet acts as exactly one role at a time.
const (
	RoleTriage   = "triage"
	RoleDoctor   = "doctor"
	RoleLab      = "lab"
	RolePharmacy = "pharmacy"
	RoleAdmin    = "admin"
)

var validRoles = map[string]bool{
	RoleTriage:   true,
	RoleDoctor:   true,
	RoleLab:      true,
	RolePharmacy: true,
	RoleAdmin:    true,
}

// ValidRole reports whether role is one of the station roles.
func ValidRole(role string) bool {
	return validRoles[role]
}

type Claims struct {
	jwt.RegisteredClaims
	StationID string `json:"station_id"`
	Role      string `json:"role"`
}

// IssueToken mints a station session token for the given role. The token is
// what ties a tablet to its role for the day; it carries no user identity.
func IssueToken(secret []byte, stationID, role string, ttl time.Duration) (string, error) {
	if !ValidRole(role) {
		return "", fmt.Errorf("invalid station role: %s", role)
	}
	now := time.Now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   stationID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		StationID: stationID,
		Role:      role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// StationMiddleware validates the bearer token and places the station ID and
// role in the request context.
func StationMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid station token")
			}
			if !ValidRole(claims.Role) {
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown station role")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, StationIDKey, claims.StationID)
			ctx = context.WithValue(ctx, StationRoleKey, claims.Role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware tags every request with the admin role. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, StationIDKey, "dev-station")
			ctx = context.WithValue(ctx, StationRoleKey, RoleAdmin)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireRole gates a route group to the given station roles. Admin always
// passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// StationIDFromContext retrieves the station ID set by the auth middleware.
func StationIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(StationIDKey).(string)
	return sid
}

// RoleFromContext retrieves the station role set by the auth middleware.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(StationRoleKey).(string)
	return role
}
