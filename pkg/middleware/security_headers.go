package middleware

import "github.com/labstack/echo/v4"

// SecurityHeadersConfig holds header values echo's Secure middleware does not
// set. Empty fields fall back to DefaultSecurityHeadersConfig.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
	// CacheControl keeps tokens and profiles out of shared caches.
	CacheControl string
}

// DefaultSecurityHeadersConfig is locked down for a JSON API.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		PermissionsPolicy:     "camera=(), microphone=(), geolocation=()",
		CacheControl:          "no-store",
	}
}

func (c SecurityHeadersConfig) pairs() [][2]string {
	d := DefaultSecurityHeadersConfig()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return [][2]string{
		{"Content-Security-Policy", pick(c.ContentSecurityPolicy, d.ContentSecurityPolicy)},
		{"Referrer-Policy", pick(c.ReferrerPolicy, d.ReferrerPolicy)},
		{"Permissions-Policy", pick(c.PermissionsPolicy, d.PermissionsPolicy)},
		{"Cache-Control", pick(c.CacheControl, d.CacheControl)},
	}
}

// SecurityHeaders sets the configured headers on every response. Handlers
// may still override them, e.g. a download setting its own Cache-Control.
func SecurityHeaders(config SecurityHeadersConfig) echo.MiddlewareFunc {
	headers := config.pairs()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range headers {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
