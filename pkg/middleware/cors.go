package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DefaultAllowedOrigins is used when CORS_ALLOWED_ORIGINS is empty.
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORSConfig allows credentialed requests from origins so the user token
// cookie reaches the API. Trailing slashes in configured origins are ignored.
func CORSConfig(origins []string) middleware.CORSConfig {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedOrigins
	}

	return middleware.CORSConfig{
		AllowOrigins:     allowed,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders:    []string{echo.HeaderContentDisposition, HeaderAPIVersion},
		AllowCredentials: true,
		MaxAge:           600,
	}
}
