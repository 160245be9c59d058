package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
)

// RequireRole allows the request when the requester holds one of roles.
// Admins pass every check.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	denied := "required role: " + strings.Join(names, " or ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r, ok := RequesterFromContext(c.Request().Context())
			if !ok {
				return apperr.Unauthorized("authentication required")
			}
			if r.Role == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if r.Role == required {
					return next(c)
				}
			}
			return apperr.Forbidden(denied)
		}
	}
}
