package errors

import (
	stderrors "errors"
	"net/http"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
)

type holder struct{ l logger.Logger }

var log atomic.Pointer[holder]

func init() {
	log.Store(&holder{logger.Default()})
}

// SetLogger replaces the logger used to record error details server-side.
func SetLogger(l logger.Logger) {
	if l == nil {
		l = logger.Discard()
	}
	log.Store(&holder{l})
}

func current() logger.Logger {
	return log.Load().l
}

// ValidationError returns 400. Messages of domain validation errors are safe
// to show; anything else gets a generic message.
func ValidationError(c echo.Context, err error) error {
	current().Warn("validation error", "path", c.Request().URL.Path, "error", err)

	message := "Invalid request data. Please check your input and try again."
	var de *domain.DomainError
	if stderrors.As(err, &de) && de.Kind == domain.KindValidation {
		message = de.Message
	}

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

// InternalError returns a generic internal server error. The detail is logged
// and reported to Sentry, never sent to the client.
func InternalError(c echo.Context, err error) error {
	current().Error("internal error", "path", c.Request().URL.Path, "error", err)

	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context, reason string) error {
	current().Debug("unauthorized", "path", c.Request().URL.Path, "reason", reason)
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// ForbiddenError returns 403 with reason.
func ForbiddenError(c echo.Context, reason string) error {
	if reason == "" {
		reason = "You do not have permission to access this resource."
	}
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: reason,
	})
}

// NotFoundError returns 404 naming the missing resource.
func NotFoundError(c echo.Context, resource string) error {
	message := "The requested resource was not found."
	if resource != "" {
		message = resource + " not found"
	}
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: message,
	})
}

// ConflictError returns a generic conflict error
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message, // safe to expose, e.g. "email already registered"
	})
}

// FromDomain writes the response matching err's domain kind. Errors without
// one are internal.
func FromDomain(c echo.Context, err error) error {
	var de *domain.DomainError
	if !stderrors.As(err, &de) {
		return InternalError(c, err)
	}

	switch de.Kind {
	case domain.KindValidation:
		return ValidationError(c, err)
	case domain.KindNotFound:
		return c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: de.Message,
		})
	case domain.KindConflict:
		return ConflictError(c, de.Message)
	case domain.KindUnauthorized:
		return UnauthorizedError(c, de.Message)
	case domain.KindForbidden:
		return ForbiddenError(c, de.Message)
	default:
		return InternalError(c, err)
	}
}
