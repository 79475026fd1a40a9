package models

import (
	"github.com/jordanlanch/refertrack/pkg/account"
)

// SignupRequest is the signup body for every role. Which fields are
// required depends on the role; the validate tags only check shape.
type SignupRequest struct {
	Name             string `json:"name" validate:"omitempty,max=120"`
	Email            string `json:"email" validate:"omitempty,email,max=254"`
	PhoneNumber      string `json:"phoneNumber" validate:"omitempty,max=32"`
	Password         string `json:"password" validate:"required,min=6,max=72"`
	ReferralCode     string `json:"referralCode" validate:"omitempty,max=32"`
	SchoolName       string `json:"schoolName" validate:"omitempty,max=200"`
	Standard         string `json:"standard" validate:"omitempty,max=32"`
	Address          string `json:"address" validate:"omitempty,max=500"`
	FeedbackDetails  string `json:"feedbackDetails" validate:"omitempty,max=2000"`
	CollegeName      string `json:"collegeName" validate:"omitempty,max=200"`
	YearOfGraduation int    `json:"yearOfGraduation" validate:"omitempty,min=1950,max=2100"`
}

// ToNewAccount converts the request into signup input for role.
func (r SignupRequest) ToNewAccount(role account.Role) account.NewAccount {
	return account.NewAccount{
		Role:         role,
		Name:         r.Name,
		Email:        r.Email,
		PhoneNumber:  r.PhoneNumber,
		Password:     r.Password,
		ReferralCode: r.ReferralCode,
		Profile: account.Profile{
			SchoolName:       r.SchoolName,
			Standard:         r.Standard,
			Address:          r.Address,
			FeedbackDetails:  r.FeedbackDetails,
			CollegeName:      r.CollegeName,
			YearOfGraduation: r.YearOfGraduation,
		},
	}
}

// LoginRequest carries the credential of whichever login field the role uses.
type LoginRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password" validate:"required"`
}

// Identifier returns the value of the role's login field.
func (r LoginRequest) Identifier(field account.LoginField) string {
	switch field {
	case account.LoginByPhone:
		return r.PhoneNumber
	case account.LoginByName:
		return r.Name
	default:
		return r.Email
	}
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Message string           `json:"message"`
	Token   string           `json:"token"`
	User    *account.Account `json:"user"`
}

// AccountListResponse is a page of accounts.
type AccountListResponse struct {
	Accounts []*account.Account `json:"accounts"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// ValidateCodeResponse reports whether a referral code would credit anyone.
type ValidateCodeResponse struct {
	Valid        bool   `json:"valid"`
	ReferrerName string `json:"referrerName,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// VideoResponse is returned after a video upload.
type VideoResponse struct {
	Message  string `json:"message"`
	VideoURL string `json:"videoUrl"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
