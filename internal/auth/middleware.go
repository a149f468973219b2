// Package auth consumes Bearer tokens issued by the identity provider and
// attaches the caller to the request context. Token issuance is external;
// only verification happens here.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Roles a token may carry.
const (
	RoleParent = "parent"
	RoleSitter = "sitter"
	RoleAdmin  = "admin"
)

const userContextKey = "auth.user"

// User is the authenticated caller.
type User struct {
	ID   string
	Role string
}

// Middleware verifies the Authorization Bearer token and stores the caller on
// the request context. Requests without a valid token get 401.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			user, err := parseToken(token, secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// RequireRole rejects callers whose role is not in the allowed set.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			for _, r := range roles {
				if user.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// CurrentUser returns the authenticated caller, if any.
func CurrentUser(c echo.Context) (User, bool) {
	user, ok := c.Get(userContextKey).(User)
	return user, ok
}

func parseToken(raw string, secret []byte) (User, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return User{}, errors.New("invalid token")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || role == "" {
		return User{}, errors.New("token missing subject or role")
	}
	return User{ID: sub, Role: role}, nil
}
