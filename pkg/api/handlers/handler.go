package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/refertrack/pkg/account"
	apierrors "github.com/jordanlanch/refertrack/pkg/api/errors"
	apimiddleware "github.com/jordanlanch/refertrack/pkg/api/middleware"
	"github.com/jordanlanch/refertrack/pkg/auth"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	custommiddleware "github.com/jordanlanch/refertrack/pkg/middleware"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/jordanlanch/refertrack/pkg/referral"
	"github.com/jordanlanch/refertrack/pkg/storage"
	"github.com/labstack/echo/v4"
)

const requestTimeout = 5 * time.Second

// Settings are the HTTP-facing knobs taken from config.
type Settings struct {
	CookieSecure    bool
	AdminSignupOpen bool
	VideoURLTTL     time.Duration
	VideoMaxBytes   int64
}

// Deps groups what the handlers need. Videos may be nil, in which case the
// video endpoints answer 503 and no URLs are signed.
type Deps struct {
	Service     *referral.Service
	Leaderboard *referral.Leaderboard
	Reconciler  *referral.Reconciler
	Issuer      *auth.TokenIssuer
	Videos      storage.ObjectStore
	Logger      logger.Logger
	Settings    Settings
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if d.Settings.VideoURLTTL <= 0 {
		d.Settings.VideoURLTTL = time.Hour
	}
	if d.Settings.VideoMaxBytes <= 0 {
		d.Settings.VideoMaxBytes = 100 << 20
	}
}

var validate = validator.New()

// bind decodes and validates the request body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return domain.NewValidationError("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return domain.NewValidationError(validationMessage(err))
	}
	return nil
}

// validationMessage names the offending JSON fields without echoing values.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", lowerFirst(fe.Field()), fe.Tag()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func currentAccount(c echo.Context) (*account.Account, error) {
	acc, ok := custommiddleware.CurrentAccount(c)
	if !ok {
		return nil, domain.NewUnauthorizedError("authentication required")
	}
	return acc, nil
}

// respondError maps err to a response.
func respondError(c echo.Context, err error) error {
	return apierrors.FromDomain(c, err)
}

// issueSession signs a token for acc and, for roles that use cookies, sets it
// as an httpOnly cookie too.
func issueSession(c echo.Context, d *Deps, acc *account.Account) (string, error) {
	desc, err := d.Service.Roles().Lookup(acc.Role)
	if err != nil {
		return "", err
	}
	token, err := d.Issuer.Issue(acc.ID, string(acc.Role), desc.TokenTTL)
	if err != nil {
		return "", domain.NewInternalError(err)
	}
	if acc.Role == account.RoleUser {
		c.SetCookie(&http.Cookie{
			Name:     apimiddleware.TokenCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			Secure:   d.Settings.CookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(desc.TokenTTL.Seconds()),
		})
	}
	return token, nil
}

func clearSessionCookie(c echo.Context, d *Deps) {
	c.SetCookie(&http.Cookie{
		Name:     apimiddleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   d.Settings.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// signVideos fills VideoURL for every account holding a video key. URLs are
// never stored; a signing failure leaves the URL empty.
func signVideos(ctx context.Context, d *Deps, accounts ...*account.Account) {
	if d.Videos == nil {
		return
	}
	for _, acc := range accounts {
		if acc == nil || acc.VideoKey == "" {
			continue
		}
		url, err := d.Videos.SignedURL(ctx, acc.VideoKey, d.Settings.VideoURLTTL)
		if err != nil {
			d.Logger.Warn("failed to sign video url", "account_id", acc.ID, "error", err)
			continue
		}
		acc.VideoURL = url
	}
}

func success(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: message})
}
