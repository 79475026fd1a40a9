package middleware

import (
	"net/http"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
)

// Context keys set by the JWT middleware.
const (
	ContextKeyAccount = "account"
	ContextKeyClaims  = "claims"
	ContextKeyToken   = "token"
)

// CurrentAccount returns the authenticated account, if any.
func CurrentAccount(c echo.Context) (*account.Account, bool) {
	acc, ok := c.Get(ContextKeyAccount).(*account.Account)
	return acc, ok && acc != nil
}

// RequireRole allows the request only when the authenticated account has one
// of roles. Apply it after the JWT middleware.
func RequireRole(roles ...account.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acc, ok := CurrentAccount(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Authentication required",
				})
			}

			for _, role := range roles {
				if acc.Role == role {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, models.ErrorResponse{
				Error:   "insufficient_permissions",
				Message: "This endpoint is not available for " + string(acc.Role) + " accounts",
			})
		}
	}
}
