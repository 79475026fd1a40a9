package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(2, 1)

	a := rl.GetLimiter("192.168.1.1 POST /login")
	b := rl.GetLimiter("192.168.1.2 POST /login")

	assert.True(t, a.Allow())
	assert.True(t, b.Allow())
	assert.False(t, a.Allow(), "burst exhausted")
	assert.False(t, b.Allow(), "burst exhausted")
	assert.Equal(t, 2, rl.Visitors())
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(2, 1)
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.POST("/api/v1/user/login", ok, rl.Middleware())
	e.POST("/api/v1/user/signup", ok, rl.Middleware())

	do := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/api/v1/user/login", "192.168.1.1:12345").Code)

	rec := do("/api/v1/user/login", "192.168.1.1:12346")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("/api/v1/user/login", "192.168.1.2:12345").Code, "other clients unaffected")
	assert.Equal(t, http.StatusOK, do("/api/v1/user/signup", "192.168.1.1:12347").Code, "other routes unaffected")
}

func TestRateLimiter_CleanupKeepsActive(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.GetLimiter("10.0.0.1").Allow()
	rl.GetLimiter("10.0.0.2")

	rl.Cleanup()

	assert.Equal(t, 1, rl.Visitors(), "only the idle bucket is dropped")
}
