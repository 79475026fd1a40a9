package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newContext creates an echo.Context backed by an httptest recorder.
func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// captureLog routes the package logger to a buffer for the duration of fn.
func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	SetLogger(logger.NewWithWriter(&buf, "debug", "json"))
	t.Cleanup(func() { SetLogger(logger.Default()) })
	fn()
	return buf.String()
}

func TestValidationError(t *testing.T) {
	t.Run("domain message is shown", func(t *testing.T) {
		c, rec := newContext(http.MethodPost, "/api/v1/user/signup")
		require.NoError(t, ValidationError(c, domain.NewValidationError("missing required fields: email")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := parseBody(t, rec)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Equal(t, "missing required fields: email", resp.Message)
	})

	t.Run("other errors are hidden", func(t *testing.T) {
		c, rec := newContext(http.MethodPost, "/api/v1/user/signup")
		require.NoError(t, ValidationError(c, errors.New("Key: 'SignupRequest.Password' Error:Field validation for 'Password' failed")))

		resp := parseBody(t, rec)
		assert.NotContains(t, resp.Message, "SignupRequest")
	})
}

func TestInternalError_NoInternalDetails(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/v1/user/me")

	logged := captureLog(t, func() {
		require.NoError(t, InternalError(c, errors.New("pq: connection refused at 10.0.0.3")))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := parseBody(t, rec)
	assert.Equal(t, "internal_error", resp.Error)
	assert.NotContains(t, resp.Message, "10.0.0.3")
	assert.Contains(t, logged, "10.0.0.3")
	assert.Contains(t, logged, "/api/v1/user/me")
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantMsg    string
	}{
		{"validation", domain.NewValidationError("invalid credentials"), http.StatusBadRequest, "validation_error", "invalid credentials"},
		{"not found", domain.NewNotFoundError("account"), http.StatusNotFound, "not_found", "account not found"},
		{"conflict", domain.NewConflictError("email already registered"), http.StatusConflict, "conflict", "email already registered"},
		{"unauthorized", domain.NewUnauthorizedError("token expired"), http.StatusUnauthorized, "unauthorized", ""},
		{"forbidden", domain.NewForbiddenError("account is disabled"), http.StatusForbidden, "forbidden", "account is disabled"},
		{"internal", domain.NewInternalError(errors.New("disk full")), http.StatusInternalServerError, "internal_error", ""},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}

	SetLogger(logger.Discard())
	t.Cleanup(func() { SetLogger(logger.Default()) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/")
			require.NoError(t, FromDomain(c, tt.err))

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := parseBody(t, rec)
			assert.Equal(t, tt.wantError, resp.Error)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Message)
			}
			assert.NotContains(t, resp.Message, "disk full")
		})
	}
}

func TestNotFoundError(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/")
	require.NoError(t, NotFoundError(c, "referral code"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "referral code not found", parseBody(t, rec).Message)
}
