package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/export"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AdminHandler serves the admin-only endpoints.
type AdminHandler struct {
	deps *Deps
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(deps *Deps) *AdminHandler {
	return &AdminHandler{deps: deps}
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

// ListAccounts returns a page of accounts of ?role=.
func (h *AdminHandler) ListAccounts(c echo.Context) error {
	role, err := account.ParseRole(c.QueryParam("role"))
	if err != nil {
		return respondError(c, err)
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		return respondError(c, err)
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	accounts, err := h.deps.Service.List(ctx, account.ListFilter{
		Role:        role,
		EnabledOnly: c.QueryParam("enabled") == "true",
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	if accounts == nil {
		accounts = []*account.Account{}
	}
	signVideos(ctx, h.deps, accounts...)

	return c.JSON(http.StatusOK, models.AccountListResponse{
		Accounts: accounts,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetAccount returns any account with its rank and referees.
func (h *AdminHandler) GetAccount(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	acc, err := h.deps.Service.Get(ctx, "", c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	profile, err := h.deps.Service.Profile(ctx, acc)
	if err != nil {
		return respondError(c, err)
	}
	signVideos(ctx, h.deps, append(profile.Referrals, acc)...)

	return c.JSON(http.StatusOK, profile)
}

// DeleteAccount soft-deletes any account except the caller's own.
func (h *AdminHandler) DeleteAccount(c echo.Context) error {
	caller, err := currentAccount(c)
	if err != nil {
		return respondError(c, err)
	}
	if caller.ID == c.Param("id") {
		return respondError(c, domain.NewValidationError("admins cannot delete their own account"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	acc, err := h.deps.Service.Get(ctx, "", c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if err := h.deps.Service.Disable(ctx, acc); err != nil {
		return respondError(c, err)
	}

	h.deps.Logger.Info("account disabled by admin", "admin_id", caller.ID, "account_id", acc.ID)
	return success(c, "Account deleted successfully")
}

// Reconcile runs reconciliation for ?role= and returns the report.
func (h *AdminHandler) Reconcile(c echo.Context) error {
	role, err := account.ParseRole(c.QueryParam("role"))
	if err != nil {
		return respondError(c, err)
	}

	// A full pass can take longer than a normal request.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Minute)
	defer cancel()

	report, err := h.deps.Reconciler.Run(ctx, role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// ExportLeaderboard downloads the :role leaderboard as a spreadsheet.
func (h *AdminHandler) ExportLeaderboard(c echo.Context) error {
	role, err := account.ParseRole(c.Param("role"))
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := h.deps.Leaderboard.Get(ctx, role)
	if err != nil {
		return respondError(c, err)
	}
	data, err := export.LeaderboardXLSX(entries)
	if err != nil {
		return respondError(c, domain.NewInternalError(err))
	}

	filename := fmt.Sprintf("leaderboard-%s-%s.xlsx", role, time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, export.ContentTypeXLSX, data)
}
