package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ENVIRONMENT", "development")
	t.Setenv("USER_TOKEN_TTL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg := Load()

	assert.Equal(t, 48*time.Hour, cfg.UserTokenTTL)
	assert.Equal(t, time.Hour, cfg.SchoolTokenTTL)
	assert.Equal(t, time.Hour, cfg.CollegeTokenTTL)
	assert.Equal(t, time.Hour, cfg.AdminTokenTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ENVIRONMENT", "production")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("USER_TOKEN_TTL", "12h")
	t.Setenv("LEADERBOARD_CACHE_TTL", "1m")
	t.Setenv("ADMIN_SIGNUP_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, 12*time.Hour, cfg.UserTokenTTL)
	assert.Equal(t, time.Minute, cfg.LeaderboardCacheTTL)
	assert.True(t, cfg.AdminSignupOpen)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("VIDEO_URL_TTL", "soon")
	t.Setenv("ADMIN_SIGNUP_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, time.Hour, cfg.VideoURLTTL)
	assert.False(t, cfg.AdminSignupOpen)
}
