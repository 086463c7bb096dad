// Package session holds the identity, profile and session of one application instance.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
)

var (
	// errors
	ErrDemoDisabled = errors.New("demo login is disabled")
	ErrDemoMode     = errors.New("not available in demo mode")
)

// Status is the lifecycle stage of a Provider.
type Status string

// Statuses
const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusLoading       Status = "LOADING"
	StatusAnonymous     Status = "ANONYMOUS"
	StatusAuthenticated Status = "AUTHENTICATED"
)

type (
	// User is the authentication identity of a signed in user.
	User struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Session is the credential proving a User is signed in.
	Session struct {
		ID          string    `json:"id"`
		User        User      `json:"user"`
		AccessToken string    `json:"access_token"`
		TokenType   string    `json:"token_type"`
		ExpiresAt   time.Time `json:"expires_at"`
		// RefreshDeadline is the instant after which the session cannot be refreshed anymore.
		RefreshDeadline time.Time `json:"refresh_deadline"`
	}

	// State is a snapshot of what a Provider publishes.
	// Profile may be nil while User is set when the profile could not be fetched.
	State struct {
		User    *User         `json:"user"`
		Profile *user.Profile `json:"profile"`
		Session *Session      `json:"session"`
		Loading bool          `json:"loading"`
		Status  Status        `json:"status"`
	}

	// Observer is called with the new State after every change.
	Observer func(State)

	SignUpRequest struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	// Provider is the session/identity provider of one application instance.
	Provider interface {
		// Init starts resolving any persisted session. Subsequent calls are no-ops.
		Init(ctx context.Context)
		State() State
		// Wait blocks until the provider is no longer loading or ctx is done.
		Wait(ctx context.Context) error
		// Subscribe registers obs and returns a func that unregisters it.
		Subscribe(obs Observer) func()

		SignUp(ctx context.Context, req SignUpRequest) error
		SignIn(ctx context.Context, email, password string) error
		SignOut(ctx context.Context) error
		UpdateProfile(ctx context.Context, upd user.ProfileUpdate) error
		DemoLogin(ctx context.Context, role user.Role) error

		// Dispose drops the backend subscription and every observer.
		Dispose()
	}
)

// Deadline is the instant after which the session can neither be used nor refreshed.
func (s Session) Deadline() time.Time {
	if s.RefreshDeadline.After(s.ExpiresAt) {
		return s.RefreshDeadline
	}
	return s.ExpiresAt
}

// IsAuthenticated reports whether someone is signed in.
func (st State) IsAuthenticated() bool { return st.User != nil }

// ChangeEvent is the kind of a session change emitted by a Backend.
type ChangeEvent string

// Change events
const (
	EventSignedIn       ChangeEvent = "SIGNED_IN"
	EventSignedOut      ChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed ChangeEvent = "TOKEN_REFRESHED"
)

// Change is a session change; Session is nil when signed out.
type Change struct {
	Event   ChangeEvent
	Session *Session
}

// Backend is the authentication backend a RealAuth provider consumes.
type Backend interface {
	// GetSession returns the persisted session, or nil if there is none.
	GetSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers fn for every session change and returns a func that unregisters it.
	OnSessionChange(fn func(Change)) func()
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, req SignUpRequest) error
	SignOut(ctx context.Context) error
	FetchProfile(ctx context.Context, userID string) (user.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error)
}

// New returns the Provider variant selected by conf.DemoMode.
func New(conf *core.Config, backend Backend, notifier Notifier, logger core.Logger) Provider {
	if conf.DemoMode {
		return NewDemoAuth(notifier, logger)
	}
	return NewRealAuth(backend, notifier, logger, conf.Server.SessionLoadTimeout)
}
