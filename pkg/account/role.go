package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/jordanlanch/refertrack/pkg/domain"
)

// Role discriminates account variants.
type Role string

const (
	RoleUser    Role = "user"
	RoleSchool  Role = "school"
	RoleCollege Role = "college"
	RoleAdmin   Role = "admin"
)

// LoginField names the field an account authenticates with.
type LoginField string

const (
	LoginByPhone LoginField = "phoneNumber"
	LoginByName  LoginField = "name"
	LoginByEmail LoginField = "email"
)

// Field names checked by Descriptor.Validate.
const (
	FieldName             = "name"
	FieldEmail            = "email"
	FieldPassword         = "password"
	FieldPhoneNumber      = "phoneNumber"
	FieldSchoolName       = "schoolName"
	FieldStandard         = "standard"
	FieldAddress          = "address"
	FieldCollegeName      = "collegeName"
	FieldYearOfGraduation = "yearOfGraduation"
)

// Descriptor is the per-role policy for signup, login and referrals.
type Descriptor struct {
	Role           Role
	LoginField     LoginField
	IssuesCode     bool
	ReferrerRole   Role // empty when the role cannot be referred
	TokenTTL       time.Duration
	RequiredFields []string
}

// Referable reports whether signups of this role may carry a referral code.
func (d Descriptor) Referable() bool {
	return d.ReferrerRole != ""
}

// LoginKey derives the normalized credential identifier stored for an
// account. Phone numbers are expected in E.164 already.
func (d Descriptor) LoginKey(name, email, phone string) string {
	switch d.LoginField {
	case LoginByPhone:
		return strings.TrimSpace(phone)
	case LoginByName:
		return strings.ToLower(strings.TrimSpace(name))
	default:
		return strings.ToLower(strings.TrimSpace(email))
	}
}

// Validate checks that every field the role requires is present.
func (d Descriptor) Validate(n NewAccount) error {
	var missing []string
	for _, field := range d.RequiredFields {
		if !n.has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return domain.NewValidationError(fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Roles maps each role to its descriptor.
type Roles map[Role]Descriptor

// DefaultRoles returns the built-in role policies.
func DefaultRoles() Roles {
	return Roles{
		RoleUser: {
			Role:           RoleUser,
			LoginField:     LoginByPhone,
			IssuesCode:     true,
			ReferrerRole:   RoleUser,
			TokenTTL:       48 * time.Hour,
			RequiredFields: []string{FieldName, FieldEmail, FieldPassword, FieldPhoneNumber},
		},
		RoleSchool: {
			Role:         RoleSchool,
			LoginField:   LoginByName,
			ReferrerRole: RoleCollege,
			TokenTTL:     time.Hour,
			RequiredFields: []string{
				FieldName, FieldPassword, FieldPhoneNumber,
				FieldSchoolName, FieldStandard, FieldAddress,
			},
		},
		RoleCollege: {
			Role:       RoleCollege,
			LoginField: LoginByEmail,
			IssuesCode: true,
			TokenTTL:   time.Hour,
			RequiredFields: []string{
				FieldName, FieldEmail, FieldPassword, FieldPhoneNumber,
				FieldCollegeName, FieldYearOfGraduation,
			},
		},
		RoleAdmin: {
			Role:           RoleAdmin,
			LoginField:     LoginByEmail,
			TokenTTL:       time.Hour,
			RequiredFields: []string{FieldName, FieldEmail, FieldPassword},
		},
	}
}

// WithTokenTTLs returns a copy with the given token lifetimes applied.
// Zero durations keep the existing value.
func (r Roles) WithTokenTTLs(ttls map[Role]time.Duration) Roles {
	out := make(Roles, len(r))
	for role, d := range r {
		if ttl, ok := ttls[role]; ok && ttl > 0 {
			d.TokenTTL = ttl
		}
		out[role] = d
	}
	return out
}

// Lookup returns the descriptor for role.
func (r Roles) Lookup(role Role) (Descriptor, error) {
	d, ok := r[role]
	if !ok {
		return Descriptor{}, domain.NewValidationError(fmt.Sprintf("unknown role %q", role))
	}
	return d, nil
}

// RefereeRole returns the role whose signups credit accounts of referrer.
func (r Roles) RefereeRole(referrer Role) (Role, bool) {
	for _, role := range []Role{RoleUser, RoleSchool, RoleCollege, RoleAdmin} {
		if d, ok := r[role]; ok && d.ReferrerRole == referrer {
			return role, true
		}
	}
	return "", false
}

// ParseRole validates a role name from user input.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleSchool, RoleCollege, RoleAdmin:
		return r, nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("unknown role %q", s))
	}
}
