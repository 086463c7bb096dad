// Package auth is the authentication backend: accounts, sessions, tokens and their events.
package auth

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/session"
	"github.com/trezcool/masomo-portals/core/user"
)

var (
	// errors
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrAccountInactive    = errors.New("account deactivated")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrRefreshExpired     = errors.New("refresh has expired")
	ErrSessionRevoked     = errors.New("session revoked")
)

// Event types
const (
	EventSignedUp       = "auth.signed_up"
	EventSignedIn       = "auth.signed_in"
	EventSignedOut      = "auth.signed_out"
	EventProfileUpdated = "profile.updated"
)

type (
	ServiceDeps struct {
		Conf     *core.Config
		Users    *user.Service
		Sessions SessionRepository
		Bus      RevocationBus
		MailSvc  core.EmailService
		Events   core.EventPublisher
		Logger   core.Logger
		NowFunc  func() time.Time // defaults to the UTC wall clock
	}

	// Service is the authentication backend shared by every application instance.
	Service struct {
		conf     *core.Config
		users    *user.Service
		sessions SessionRepository
		bus      RevocationBus
		mailSvc  core.EmailService
		events   core.EventPublisher
		logger   core.Logger
		nowFunc  func() time.Time // mockable
	}

	// Event is the payload of every published auth event.
	Event struct {
		UserID    string    `json:"user_id"`
		SessionID string    `json:"session_id,omitempty"`
		TenantID  string    `json:"tenant_id,omitempty"`
		Email     string    `json:"email,omitempty"`
		Role      user.Role `json:"role,omitempty"`
		Fields    []string  `json:"fields,omitempty"`
		At        time.Time `json:"at"`
	}

	confirmEmailData struct {
		FirstName  string
		SchoolName string
		UID        string
		Token      string
	}

	passwordResetData struct {
		FirstName  string
		SchoolName string
	}
)

func NewService(deps ServiceDeps) *Service {
	nowFunc := deps.NowFunc
	if nowFunc == nil {
		nowFunc = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		conf:     deps.Conf,
		users:    deps.Users,
		sessions: deps.Sessions,
		bus:      deps.Bus,
		mailSvc:  deps.MailSvc,
		events:   deps.Events,
		logger:   deps.Logger,
		nowFunc:  nowFunc,
	}
}

func (svc *Service) Bus() RevocationBus { return svc.bus }

// SignUp registers an unconfirmed account in the configured school, then emails its confirmation link.
func (svc *Service) SignUp(ctx context.Context, req session.SignUpRequest) (user.Account, user.Profile, error) {
	role, ok := user.ParseRole(svc.conf.SignUpRole)
	if !ok {
		role = user.RoleStudent
	}
	return svc.register(ctx, user.NewAccount{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		TenantID:  svc.conf.School.ID,
	})
}

// AddUser registers an account with any role; it is confirmed right away.
func (svc *Service) AddUser(ctx context.Context, na user.NewAccount) (user.Account, user.Profile, error) {
	if na.TenantID == "" {
		na.TenantID = svc.conf.School.ID
	}
	acc, prof, err := svc.users.Register(ctx, na)
	if err != nil {
		return user.Account{}, user.Profile{}, err
	}
	now := svc.nowFunc()
	acc.ConfirmedAt = &now
	acc, err = svc.users.SetActive(ctx, acc, true)
	if err != nil {
		return user.Account{}, user.Profile{}, errors.Wrap(err, "confirming account")
	}
	return acc, prof, nil
}

func (svc *Service) register(ctx context.Context, na user.NewAccount) (user.Account, user.Profile, error) {
	acc, prof, err := svc.users.Register(ctx, na)
	if err != nil {
		return user.Account{}, user.Profile{}, err
	}
	svc.sendConfirmationMail(acc, prof)
	svc.publish(ctx, EventSignedUp, Event{UserID: acc.ID, TenantID: prof.TenantID, Email: acc.Email, Role: prof.Role}, acc.ID)
	return acc, prof, nil
}

func (svc *Service) sendConfirmationMail(acc user.Account, prof user.Profile) {
	uid, token := svc.users.ConfirmationToken(acc)
	link := fmt.Sprintf("%s/v1/auth/confirm?uid=%s&token=%s", svc.conf.FrontendBaseURL, uid, token)
	msg := core.NewEmailMessage(
		svc.conf,
		mail.Address{Name: prof.FullName(), Address: acc.Email},
		"Confirm your email address",
		"confirm_email",
		confirmEmailData{FirstName: prof.FirstName, SchoolName: svc.conf.School.Name, UID: uid, Token: token},
		"Please confirm your email address by following this link: "+link,
	)
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) ConfirmEmail(ctx context.Context, uid, token string) (user.Account, error) {
	return svc.users.ConfirmEmail(ctx, uid, token)
}

// SignInWithPassword checks the credentials, records a new session and returns it.
func (svc *Service) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	acc, err := svc.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "finding account by email")
	}
	if err = acc.CheckPassword(password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !acc.IsActive {
		return nil, ErrAccountInactive
	}
	if svc.conf.RequireEmailConfirmation && !acc.IsConfirmed() {
		return nil, ErrEmailNotConfirmed
	}
	prof, err := svc.users.GetProfile(ctx, acc.ID)
	if err != nil {
		return nil, errors.Wrap(err, "finding profile")
	}
	if acc, err = svc.users.SetLastLogin(ctx, acc); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}

	now := svc.nowFunc()
	claims := newClaims(svc.conf, uuid.NewString(), acc, prof, now)
	rec := SessionRecord{
		ID:        claims.Id,
		UserID:    acc.ID,
		CreatedAt: now,
		ExpiresAt: claims.Deadline(svc.conf).UTC(),
	}
	if err = svc.sessions.CreateSession(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "creating session")
	}
	sess, err := svc.newSession(claims, acc)
	if err != nil {
		return nil, err
	}

	svc.publish(ctx, EventSignedIn, Event{UserID: acc.ID, SessionID: rec.ID, TenantID: prof.TenantID, Role: prof.Role}, acc.ID)
	return sess, nil
}

// VerifyToken returns the claims of a token bound to a live session.
// An expired token is returned along with ErrTokenExpired.
func (svc *Service) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := parseToken(svc.conf.SecretKey, token, svc.nowFunc())
	if err != nil && err != ErrTokenExpired {
		return nil, err
	}
	rec, rErr := svc.sessions.GetSession(ctx, claims.Id)
	if rErr != nil {
		if errors.Cause(rErr) == ErrSessionNotFound {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(rErr, "finding session")
	}
	if rec.IsRevoked() {
		return nil, ErrSessionRevoked
	}
	return claims, err
}

// GetSession returns the session a valid, unexpired token stands for.
func (svc *Service) GetSession(ctx context.Context, token string) (*session.Session, error) {
	claims, err := svc.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	acc, err := svc.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, "finding account by ID")
	}
	if !acc.IsActive {
		return nil, ErrAccountInactive
	}
	sess := svc.sessionFromClaims(claims, acc, token)
	return &sess, nil
}

// Refresh re-issues a token for the same session, within the refresh window.
func (svc *Service) Refresh(ctx context.Context, token string) (*session.Session, error) {
	claims, err := svc.VerifyToken(ctx, token)
	if err != nil && err != ErrTokenExpired {
		return nil, err
	}
	if svc.nowFunc().After(claims.RefreshDeadline(svc.conf)) {
		return nil, ErrRefreshExpired
	}

	acc, err := svc.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, "finding account by ID")
	}
	// check if user is still active
	if !acc.IsActive {
		return nil, ErrAccountInactive
	}
	prof, err := svc.users.GetProfile(ctx, acc.ID)
	if err != nil {
		return nil, errors.Wrap(err, "finding profile")
	}

	newClaims := newClaims(svc.conf, claims.Id, acc, prof, svc.nowFunc(), claims.OrigIssuedAt)
	return svc.newSession(newClaims, acc)
}

// SignOut revokes the session of token and broadcasts the revocation.
// Signing out with an invalid or already revoked token is a no-op.
func (svc *Service) SignOut(ctx context.Context, token string) error {
	claims, err := svc.VerifyToken(ctx, token)
	if err != nil && err != ErrTokenExpired {
		if err == ErrInvalidToken || err == ErrSessionRevoked {
			return nil
		}
		return err
	}
	if err = svc.sessions.RevokeSession(ctx, claims.Id, svc.nowFunc()); err != nil {
		return errors.Wrap(err, "revoking session")
	}
	svc.broadcast(ctx, claims.Id)
	svc.publish(ctx, EventSignedOut, Event{UserID: claims.Subject, SessionID: claims.Id}, claims.Subject)
	return nil
}

// ResetPassword replaces the password of acc, signs its owner out everywhere and notifies them by email.
// It returns the number of revoked sessions.
func (svc *Service) ResetPassword(ctx context.Context, acc user.Account, pwd string) (int, error) {
	acc, err := svc.users.SetPassword(ctx, acc, pwd)
	if err != nil {
		return 0, err
	}
	n, err := svc.RevokeUserSessions(ctx, acc.ID)
	if err != nil {
		return 0, err
	}

	prof, err := svc.users.GetProfile(ctx, acc.ID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("password reset: loading profile: %v", err))
		return n, nil
	}
	msg := core.NewEmailMessage(
		svc.conf,
		mail.Address{Name: prof.FullName(), Address: acc.Email},
		"Your password was reset",
		"password_reset",
		passwordResetData{FirstName: prof.FirstName, SchoolName: svc.conf.School.Name},
		"An administrator reset your password. Sign in again at "+svc.conf.FrontendBaseURL+"/login",
	)
	svc.mailSvc.SendMessages(msg)
	return n, nil
}

// RevokeUserSessions signs a user out of every application instance. It returns the number of revoked sessions.
func (svc *Service) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	ids, err := svc.sessions.RevokeUserSessions(ctx, userID, svc.nowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "revoking user sessions")
	}
	for _, id := range ids {
		svc.broadcast(ctx, id)
		svc.publish(ctx, EventSignedOut, Event{UserID: userID, SessionID: id}, userID)
	}
	return len(ids), nil
}

func (svc *Service) FetchProfile(ctx context.Context, userID string) (user.Profile, error) {
	return svc.users.GetProfile(ctx, userID)
}

func (svc *Service) UpdateProfile(ctx context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error) {
	prof, err := svc.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return user.Profile{}, err
	}
	svc.publish(ctx, EventProfileUpdated, Event{UserID: userID, TenantID: prof.TenantID, Fields: updatedFields(upd)}, userID)
	return prof, nil
}

func (svc *Service) newSession(claims *Claims, acc user.Account) (*session.Session, error) {
	token, err := generateToken(svc.conf.SecretKey, claims)
	if err != nil {
		return nil, errors.Wrap(err, "generating token")
	}
	sess := svc.sessionFromClaims(claims, acc, token)
	return &sess, nil
}

func (svc *Service) sessionFromClaims(claims *Claims, acc user.Account, token string) session.Session {
	return session.Session{
		ID:          claims.Id,
		User:        session.User{ID: acc.ID, Email: acc.Email, CreatedAt: acc.CreatedAt},
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresAt:   claims.ExpiresAtTime(),

		RefreshDeadline: claims.RefreshDeadline(svc.conf),
	}
}

func (svc *Service) broadcast(ctx context.Context, sessionID string) {
	if err := svc.bus.Publish(ctx, sessionID); err != nil {
		svc.logger.Error(fmt.Sprintf("broadcasting revocation of session %q: %v", sessionID, err), err)
	}
}

// publish never fails the caller: broker failures are only logged.
func (svc *Service) publish(ctx context.Context, eventType string, evt Event, key string) {
	if svc.events == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = svc.nowFunc()
	}
	if err := svc.events.Publish(ctx, eventType, evt, key); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing %s event: %v", eventType, err))
	}
}

func updatedFields(upd user.ProfileUpdate) []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(upd.FirstName != nil, "first_name")
	add(upd.LastName != nil, "last_name")
	add(upd.Email != nil, "email")
	add(upd.Phone != nil, "phone")
	add(upd.AvatarURL != nil, "avatar_url")
	add(upd.Role != nil, "role")
	return fields
}
