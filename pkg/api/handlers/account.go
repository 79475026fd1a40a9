package handlers

import (
	"net/http"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/auth"
	"github.com/jordanlanch/refertrack/pkg/domain"
	custommiddleware "github.com/jordanlanch/refertrack/pkg/middleware"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
)

// AccountHandler serves the endpoints every role group shares.
type AccountHandler struct {
	deps *Deps
	role account.Role
}

// NewAccountHandler creates the handler for one role group.
func NewAccountHandler(deps *Deps, role account.Role) *AccountHandler {
	return &AccountHandler{deps: deps, role: role}
}

// Signup creates an account of the group's role.
func (h *AccountHandler) Signup(c echo.Context) error {
	if h.role == account.RoleAdmin && !h.deps.Settings.AdminSignupOpen {
		return respondError(c, domain.NewForbiddenError("admin signup is disabled"))
	}

	var req models.SignupRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	acc, err := h.deps.Service.Signup(ctx, req.ToNewAccount(h.role))
	if err != nil {
		return respondError(c, err)
	}

	token, err := issueSession(c, h.deps, acc)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, models.AuthResponse{
		Message: "Signup successful",
		Token:   token,
		User:    acc,
	})
}

// Login authenticates with the role's login field and password.
func (h *AccountHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	desc, err := h.deps.Service.Roles().Lookup(h.role)
	if err != nil {
		return respondError(c, err)
	}
	identifier := req.Identifier(desc.LoginField)
	if identifier == "" {
		return respondError(c, domain.NewValidationError(string(desc.LoginField)+" is required"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	acc, err := h.deps.Service.Login(ctx, h.role, identifier, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	token, err := issueSession(c, h.deps, acc)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, models.AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    acc,
	})
}

// Logout revokes the presented token and clears the cookie.
func (h *AccountHandler) Logout(c echo.Context) error {
	token, _ := c.Get(custommiddleware.ContextKeyToken).(string)
	claims, _ := c.Get(custommiddleware.ContextKeyClaims).(*auth.Claims)

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.deps.Issuer.Revoke(ctx, token, claims); err != nil {
		return respondError(c, domain.NewInternalError(err))
	}
	clearSessionCookie(c, h.deps)

	return success(c, "Logged out successfully")
}

// Me returns the caller's account, rank and referees.
func (h *AccountHandler) Me(c echo.Context) error {
	acc, err := currentAccount(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	profile, err := h.deps.Service.Profile(ctx, acc)
	if err != nil {
		return respondError(c, err)
	}
	signVideos(ctx, h.deps, profile.Referrals...)

	return c.JSON(http.StatusOK, profile)
}

// GetByID returns an account of the group's role. Only the owner sees its
// referees.
func (h *AccountHandler) GetByID(c echo.Context) error {
	caller, err := currentAccount(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	acc, err := h.deps.Service.Get(ctx, h.role, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	profile, err := h.deps.Service.Profile(ctx, acc)
	if err != nil {
		return respondError(c, err)
	}
	if caller.ID != acc.ID {
		profile.Referrals = nil
	}
	signVideos(ctx, h.deps, append(profile.Referrals, acc)...)

	return c.JSON(http.StatusOK, profile)
}

// Leaderboard returns the ranked leaderboard of the group's role.
func (h *AccountHandler) Leaderboard(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := h.deps.Leaderboard.Get(ctx, h.role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// DeleteMe soft-deletes the caller and ends the session.
func (h *AccountHandler) DeleteMe(c echo.Context) error {
	acc, err := currentAccount(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.deps.Service.Disable(ctx, acc); err != nil {
		return respondError(c, err)
	}

	token, _ := c.Get(custommiddleware.ContextKeyToken).(string)
	claims, _ := c.Get(custommiddleware.ContextKeyClaims).(*auth.Claims)
	if err := h.deps.Issuer.Revoke(ctx, token, claims); err != nil {
		h.deps.Logger.Warn("failed to revoke token after account deletion", "account_id", acc.ID, "error", err)
	}
	clearSessionCookie(c, h.deps)

	return success(c, "Account deleted successfully")
}
