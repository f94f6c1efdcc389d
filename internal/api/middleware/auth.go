package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/milsabores/identity-service/internal/core/ports"
)

// Context keys set by Auth.
const (
	CtxSubject = "subject"
	CtxEmail   = "email"
	CtxToken   = "token"
)

// Auth validates the bearer token and injects its subject and email into
// the context.
func Auth(tokens ports.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}

			subject, err := tokens.SubjectOf(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			email, err := tokens.EmailOf(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(CtxSubject, subject)
			c.Set(CtxEmail, email)
			c.Set(CtxToken, token)

			return next(c)
		}
	}
}

// Owner only lets the request through when the bearer token was issued for
// the user named by the path parameter param.
func Owner(tokens ports.TokenService, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}
			if !tokens.Validate(token, c.Param(param)) {
				return echo.NewHTTPError(http.StatusForbidden, "token does not grant access to this user")
			}
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
