package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/masomo-portals/core"
)

// Role is the authorization role carried by a Profile.
type Role string

// Roles
const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
	RoleParent  Role = "PARENT"
)

var AllRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToUpper(core.CleanString(s)))
	return role, role.IsValid()
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Account is the authentication identity (credentials) of a user.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash []byte     `json:"-"`
	IsActive     bool       `json:"is_active"`
	ConfirmedAt  *time.Time `json:"confirmed_at"` // UTC
	CreatedAt    time.Time  `json:"created_at"`   // UTC
	UpdatedAt    time.Time  `json:"updated_at"`   // UTC
	LastLogin    time.Time  `json:"last_login"`   // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a *Account) IsConfirmed() bool { return a.ConfirmedAt != nil }

// Profile is the authorization-relevant record of a user: one per Account, one tenant.
type Profile struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id"`
	Role      Role   `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// NewAccount contains information needed to sign up a new user.
type NewAccount struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Role      Role   `json:"-"`
	TenantID  string `json:"-"`
}

func (na *NewAccount) Clean() {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.FirstName = core.CleanString(na.FirstName)
	na.LastName = core.CleanString(na.LastName)
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Clean()
	return validate.Struct(na)
}

// ProfileUpdate defines what information may be provided to modify an existing Profile.
// nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,phone"`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
	Role      *Role   `json:"role,omitempty" validate:"omitempty,role"`
}

func (pu *ProfileUpdate) Clean() {
	clean := func(s *string, lower ...bool) {
		if s != nil {
			*s = core.CleanString(*s, lower...)
		}
	}
	clean(pu.FirstName)
	clean(pu.LastName)
	clean(pu.Email, true /* lower */)
	clean(pu.Phone)
	clean(pu.AvatarURL)
}

func (pu *ProfileUpdate) Validate(validate *validator.Validate) error {
	pu.Clean()
	return validate.Struct(pu)
}

func (pu ProfileUpdate) IsEmpty() bool {
	return pu.FirstName == nil && pu.LastName == nil && pu.Email == nil &&
		pu.Phone == nil && pu.AvatarURL == nil && pu.Role == nil
}

// Apply merges the set fields into p and returns the result; p itself is not modified.
func (pu ProfileUpdate) Apply(p Profile) Profile {
	if pu.FirstName != nil {
		p.FirstName = *pu.FirstName
	}
	if pu.LastName != nil {
		p.LastName = *pu.LastName
	}
	if pu.Email != nil {
		p.Email = *pu.Email
	}
	if pu.Phone != nil {
		p.Phone = *pu.Phone
	}
	if pu.AvatarURL != nil {
		p.AvatarURL = *pu.AvatarURL
	}
	if pu.Role != nil {
		p.Role = *pu.Role
	}
	return p
}
