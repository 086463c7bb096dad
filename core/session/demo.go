package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
)

const (
	DemoTenantID = "00000000-0000-0000-0000-000000000001"
	DemoToken    = "demo-token"
	demoTokenTTL = time.Hour
)

// DemoAuth is the backend-free Provider: identities are synthesized by DemoLogin.
type DemoAuth struct {
	*store
	initOnce sync.Once
	nowFunc  func() time.Time // mockable
}

var _ Provider = (*DemoAuth)(nil)

func NewDemoAuth(notifier Notifier, logger core.Logger) *DemoAuth {
	return &DemoAuth{
		store:   newStore(notifier, logger),
		nowFunc: time.Now,
	}
}

// Init settles as anonymous: there is nothing to restore in demo mode.
func (p *DemoAuth) Init(context.Context) {
	p.initOnce.Do(func() {
		p.update(func(st *State) bool {
			st.Loading = false
			st.Status = StatusAnonymous
			return true
		})
	})
}

func (p *DemoAuth) SignUp(context.Context, SignUpRequest) error {
	err := core.NewAuthError("sign up", ErrDemoMode)
	p.notify(failure("Sign Up Failed", err))
	return err
}

func (p *DemoAuth) SignIn(context.Context, string, string) error {
	err := core.NewAuthError("sign in", ErrDemoMode)
	p.notify(failure("Sign In Failed", err))
	return err
}

func (p *DemoAuth) SignOut(context.Context) error {
	p.clear()
	p.notify(info("Signed Out", "You have been successfully signed out."))
	return nil
}

// UpdateProfile merges upd into the demo profile; nothing is persisted.
func (p *DemoAuth) UpdateProfile(_ context.Context, upd user.ProfileUpdate) error {
	usr, _, err := p.currentIdentity()
	if err != nil {
		return err
	}
	p.mergeProfile(usr.ID, upd)
	p.notify(info("Profile Updated", "Your profile has been updated successfully."))
	return nil
}

func (p *DemoAuth) DemoLogin(_ context.Context, role user.Role) error {
	if !role.IsValid() {
		p.notify(Notification{Title: "Demo Login Failed", Description: "Unable to access demo mode.", Variant: VariantDestructive})
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
	}

	usr, prof, sess := demoIdentity(role, p.nowFunc())
	gen := p.bump()
	p.updateIfCurrent(gen, func(st *State) {
		st.User = &usr
		st.Profile = &prof
		st.Session = &sess
		st.Loading = false
		st.Status = StatusAuthenticated
	})
	p.notify(info("Demo Login Successful", fmt.Sprintf("Welcome to the %s portal!", role)))
	return nil
}

func (p *DemoAuth) Dispose() {
	p.dispose()
}

func demoIdentity(role user.Role, now time.Time) (User, user.Profile, Session) {
	lrole := strings.ToLower(role.String())
	email := lrole + "@demo.com"

	usr := User{ID: "demo-" + lrole, Email: email, CreatedAt: now}

	first, last := "John", "Johnson"
	switch role {
	case user.RoleAdmin:
		first, last = "Admin", "User"
	case user.RoleTeacher:
		first, last = "Sarah", "Teacher"
	}
	prof := user.Profile{
		ID:        "profile-" + lrole,
		UserID:    usr.ID,
		TenantID:  DemoTenantID,
		Role:      role,
		FirstName: first,
		LastName:  last,
		Email:     email,
	}

	sess := Session{
		ID:          "demo-session-" + lrole,
		User:        usr,
		AccessToken: DemoToken,
		TokenType:   "bearer",
		ExpiresAt:   now.Add(demoTokenTTL),
	}
	return usr, prof, sess
}
