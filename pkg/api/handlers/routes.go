package handlers

import (
	"github.com/jordanlanch/refertrack/pkg/account"
	apimiddleware "github.com/jordanlanch/refertrack/pkg/api/middleware"
	custommiddleware "github.com/jordanlanch/refertrack/pkg/middleware"
	"github.com/labstack/echo/v4"
)

// RouteRoles are the role groups mounted under the API prefix, in order.
var RouteRoles = []account.Role{account.RoleUser, account.RoleSchool, account.RoleCollege, account.RoleAdmin}

// RegisterRoutes mounts every role group plus the public referral lookup on
// api. authLimiter guards signup and login and may be nil.
func RegisterRoutes(api *echo.Group, deps Deps, authLimiter echo.MiddlewareFunc) {
	d := &deps
	d.defaults()

	var limited []echo.MiddlewareFunc
	if authLimiter != nil {
		limited = append(limited, authLimiter)
	}
	jwt := apimiddleware.JWT(d.Issuer, d.Service.Repository())

	for _, role := range RouteRoles {
		desc, err := d.Service.Roles().Lookup(role)
		if err != nil {
			continue
		}
		authed := []echo.MiddlewareFunc{jwt, custommiddleware.RequireRole(role)}
		h := NewAccountHandler(d, role)

		g := api.Group("/" + string(role))
		g.POST("/signup", h.Signup, limited...)
		g.POST("/login", h.Login, limited...)
		if desc.IssuesCode {
			g.GET("/leaderboard", h.Leaderboard)
		}
		g.POST("/logout", h.Logout, authed...)
		g.GET("/me", h.Me, authed...)

		switch role {
		case account.RoleUser:
			g.DELETE("/me", h.DeleteMe, authed...)
		case account.RoleCollege:
			college := NewCollegeHandler(d)
			g.POST("/students/:id/video", college.UploadVideo, authed...)
			g.DELETE("/students/:id/video", college.DeleteVideo, authed...)
			g.DELETE("/students/:id", college.DeleteStudent, authed...)
		case account.RoleAdmin:
			admin := NewAdminHandler(d)
			g.GET("/accounts", admin.ListAccounts, authed...)
			g.GET("/accounts/:id", admin.GetAccount, authed...)
			g.DELETE("/accounts/:id", admin.DeleteAccount, authed...)
			g.POST("/reconcile", admin.Reconcile, authed...)
			g.GET("/leaderboard/:role/export", admin.ExportLeaderboard, authed...)
		}

		g.GET("/:id", h.GetByID, authed...)
	}

	api.GET("/referrals/validate", NewReferralHandler(d).ValidateCode)
}
