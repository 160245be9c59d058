package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
)

// JWTMiddleware verifies the bearer token and stores the Requester on the
// request context. Requests without a valid token are rejected.
func JWTMiddleware(tm *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return apperr.Unauthorized("missing authorization header")
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return apperr.Unauthorized("invalid authorization format")
			}

			requester, err := tm.Verify(strings.TrimSpace(tokenStr))
			if err != nil {
				return apperr.Unauthorized("invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithRequester(c.Request().Context(), requester)))
			return next(c)
		}
	}
}

// MustRequester returns the requester set by JWTMiddleware.
func MustRequester(c echo.Context) (Requester, error) {
	r, ok := RequesterFromContext(c.Request().Context())
	if !ok {
		return Requester{}, apperr.Unauthorized("authentication required")
	}
	return r, nil
}
