package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIVersionMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		version    APIVersion
		deprecated bool
		sunset     string
	}{
		{"current", CurrentAPIVersion, false, ""},
		{"superseded", APIVersion{Version: "0.9.0", LatestVersion: "1.0.0"}, true, ""},
		{"sunset", APIVersion{Version: "0.9.0", LatestVersion: "1.0.0", Sunset: "Thu, 01 Jan 2026 00:00:00 GMT"}, true, "Thu, 01 Jan 2026 00:00:00 GMT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			h := APIVersionMiddleware(tt.version)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			require.NoError(t, h(c))

			assert.Equal(t, tt.version.Version, rec.Header().Get(HeaderAPIVersion))
			assert.Equal(t, "1.0.0", rec.Header().Get("X-API-Latest-Version"))
			assert.Equal(t, tt.deprecated, rec.Header().Get("Deprecation") == "true")
			assert.Equal(t, tt.sunset, rec.Header().Get("Sunset"))
		})
	}
}
