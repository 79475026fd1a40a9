package handlers

import (
	"net/http"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
)

// ReferralHandler handles referral code lookups
type ReferralHandler struct {
	deps *Deps
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(deps *Deps) *ReferralHandler {
	return &ReferralHandler{deps: deps}
}

// ValidateCode reports whether ?code= would credit a referrer if used to sign
// up as ?role=. Unknown codes are a normal "valid: false" answer.
func (h *ReferralHandler) ValidateCode(c echo.Context) error {
	role, err := account.ParseRole(c.QueryParam("role"))
	if err != nil {
		return respondError(c, err)
	}
	code := c.QueryParam("code")
	if code == "" {
		return respondError(c, domain.NewValidationError("referral code is required"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	referrer, err := h.deps.Service.ValidateCode(ctx, role, code)
	if domain.IsNotFound(err) {
		return c.JSON(http.StatusOK, models.ValidateCodeResponse{Valid: false})
	}
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, models.ValidateCodeResponse{
		Valid:        true,
		ReferrerName: referrer.Name,
		Organization: referrer.Organization(),
	})
}
