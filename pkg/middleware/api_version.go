package middleware

import "github.com/labstack/echo/v4"

const (
	HeaderAPIVersion = "X-API-Version"
	headerLatest     = "X-API-Latest-Version"
	headerSunset     = "Sunset"
)

// APIVersion describes one mounted API prefix. A non-empty Sunset marks the
// prefix as deprecated; it is sent as-is in the Sunset header.
type APIVersion struct {
	Version       string `json:"version"`
	LatestVersion string `json:"latestVersion"`
	Sunset        string `json:"sunset,omitempty"`
	Notice        string `json:"notice,omitempty"`
}

// Deprecated reports whether clients should move off this version.
func (v APIVersion) Deprecated() bool {
	return v.Sunset != "" || (v.LatestVersion != "" && v.LatestVersion != v.Version)
}

// CurrentAPIVersion is served under /api/v1.
var CurrentAPIVersion = APIVersion{Version: "1.0.0", LatestVersion: "1.0.0"}

// APIVersionMiddleware stamps every response with the version headers.
func APIVersionMiddleware(version APIVersion) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(HeaderAPIVersion, version.Version)
			h.Set(headerLatest, version.LatestVersion)
			if version.Deprecated() {
				h.Set("Deprecation", "true")
			}
			if version.Sunset != "" {
				h.Set(headerSunset, version.Sunset)
			}
			return next(c)
		}
	}
}
