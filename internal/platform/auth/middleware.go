// Package auth extracts the calling principal from each request. The
// registry treats identity as an opaque, already-authenticated input from
// the wallet/identity layer; this package only establishes who is calling,
// never what they may do — authorization lives in the registry itself.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

// PrincipalKey is the request-context key carrying the authenticated
// principal.
const PrincipalKey contextKey = "principal"

// Claims are the JWT claims the middleware reads. The subject is the
// principal; everything else is ignored.
type Claims struct {
	jwt.RegisteredClaims
}

// Config holds JWT verification settings.
type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string
}

// Middleware returns echo middleware that verifies a bearer token and
// stores its subject on the request context as the principal.
func Middleware(cfg Config) echo.MiddlewareFunc {
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

			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid || claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := context.WithValue(c.Request().Context(), PrincipalKey, claims.Subject)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevMiddleware is a permissive middleware for development: the principal
// is taken from the X-Principal header, defaulting to fallback when the
// header is absent. Never use in production.
func DevMiddleware(fallback string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := c.Request().Header.Get("X-Principal")
			if p == "" {
				p = fallback
			}
			ctx := context.WithValue(c.Request().Context(), PrincipalKey, p)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// PrincipalFromContext returns the authenticated principal, or "" when the
// request carried none.
func PrincipalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(PrincipalKey).(string)
	return p
}
