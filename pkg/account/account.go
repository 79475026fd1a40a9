package account

import (
	"strings"
	"time"
)

// Profile holds the role-specific side fields of an account.
type Profile struct {
	SchoolName       string `json:"schoolName,omitempty"`
	Standard         string `json:"standard,omitempty"`
	Address          string `json:"address,omitempty"`
	FeedbackDetails  string `json:"feedbackDetails,omitempty"`
	CollegeName      string `json:"collegeName,omitempty"`
	YearOfGraduation int    `json:"yearOfGraduation,omitempty"`
}

// Account is a registered user, school student, college coordinator or admin.
type Account struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	PhoneNumber   string    `json:"phoneNumber,omitempty"`
	LoginKey      string    `json:"-"`
	PasswordHash  string    `json:"-"`
	ReferralCode  string    `json:"referralCode,omitempty"`
	ReferredBy    string    `json:"referredBy,omitempty"`
	ReferralCount int       `json:"referralCount"`
	IsEnabled     bool      `json:"isEnabled"`
	Profile       Profile   `json:"profile"`
	VideoKey      string    `json:"-"`
	VideoURL      string    `json:"videoUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Organization is the affiliation shown on leaderboards.
func (a *Account) Organization() string {
	switch a.Role {
	case RoleCollege:
		return a.Profile.CollegeName
	case RoleSchool:
		return a.Profile.SchoolName
	default:
		return ""
	}
}

// NewAccount is the input to signup.
type NewAccount struct {
	Role         Role
	Name         string
	Email        string
	PhoneNumber  string
	Password     string
	ReferralCode string
	Profile      Profile
}

func (n NewAccount) has(field string) bool {
	switch field {
	case FieldName:
		return strings.TrimSpace(n.Name) != ""
	case FieldEmail:
		return strings.TrimSpace(n.Email) != ""
	case FieldPassword:
		return n.Password != ""
	case FieldPhoneNumber:
		return strings.TrimSpace(n.PhoneNumber) != ""
	case FieldSchoolName:
		return strings.TrimSpace(n.Profile.SchoolName) != ""
	case FieldStandard:
		return strings.TrimSpace(n.Profile.Standard) != ""
	case FieldAddress:
		return strings.TrimSpace(n.Profile.Address) != ""
	case FieldCollegeName:
		return strings.TrimSpace(n.Profile.CollegeName) != ""
	case FieldYearOfGraduation:
		return n.Profile.YearOfGraduation > 0
	default:
		return false
	}
}
