package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jordanlanch/refertrack/pkg/account"
	apierrors "github.com/jordanlanch/refertrack/pkg/api/errors"
	"github.com/jordanlanch/refertrack/pkg/auth"
	"github.com/jordanlanch/refertrack/pkg/domain"
	custommiddleware "github.com/jordanlanch/refertrack/pkg/middleware"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
)

// TokenCookie is the cookie carrying the session token for browser clients.
const TokenCookie = "token"

// AccountLoader resolves the account named by a token.
type AccountLoader interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// TokenFromRequest extracts the token from "Authorization: Bearer" or, failing
// that, the token cookie.
func TokenFromRequest(c echo.Context) string {
	if header := c.Request().Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// JWT authenticates the request and stores the account, claims and raw token
// in the context. Revoked tokens, tokens whose role no longer matches the
// account and disabled accounts are rejected.
func JWT(issuer *auth.TokenIssuer, accounts AccountLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := TokenFromRequest(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "missing_token",
					Message: "Authorization header or token cookie is required",
				})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			claims, err := issuer.VerifyActive(ctx, token)
			if err != nil {
				message := "Invalid or expired token"
				if errors.Is(err, auth.ErrTokenRevoked) {
					message = "Token has been revoked"
				}
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: message,
				})
			}

			acc, err := accounts.GetByID(ctx, claims.AccountID)
			if err != nil {
				if domain.IsNotFound(err) {
					return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
						Error:   "account_not_found",
						Message: "Account not found",
					})
				}
				return apierrors.InternalError(c, err)
			}
			if string(acc.Role) != claims.Role {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired token",
				})
			}
			if !acc.IsEnabled {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "account_disabled",
					Message: "This account has been disabled",
				})
			}

			c.Set(custommiddleware.ContextKeyToken, token)
			c.Set(custommiddleware.ContextKeyClaims, claims)
			c.Set(custommiddleware.ContextKeyAccount, acc)

			return next(c)
		}
	}
}
