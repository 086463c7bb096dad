package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
)

// RealAuth is the Provider backed by an authentication Backend.
type RealAuth struct {
	*store
	backend     Backend
	loadTimeout time.Duration

	initOnce    sync.Once
	unsubscribe func() // guarded by store.mu
	ctx         context.Context
	cancel      context.CancelFunc
}

var _ Provider = (*RealAuth)(nil)

func NewRealAuth(backend Backend, notifier Notifier, logger core.Logger, loadTimeout time.Duration) *RealAuth {
	if loadTimeout <= 0 {
		loadTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RealAuth{
		store:       newStore(notifier, logger),
		backend:     backend,
		loadTimeout: loadTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (p *RealAuth) Init(ctx context.Context) {
	p.initOnce.Do(func() {
		p.update(func(st *State) bool {
			st.Loading = true
			st.Status = StatusLoading
			return true
		})

		gen := p.bump()
		unsub := p.backend.OnSessionChange(p.onChange)
		p.mu.Lock()
		p.unsubscribe = unsub
		p.mu.Unlock()

		go p.restore(ctx, gen)
	})
}

// restore resolves the persisted session, unless a session change got there first.
func (p *RealAuth) restore(parent context.Context, gen uint64) {
	ctx, cancel := p.loadContext(parent)
	defer cancel()

	sess, err := p.backend.GetSession(ctx)
	if err != nil {
		p.logger.Error(fmt.Sprintf("restoring session: %v", err), err)
		sess = nil
	}
	p.resolve(ctx, gen, sess)
}

func (p *RealAuth) onChange(ch Change) {
	gen := p.bump()
	ctx, cancel := p.loadContext(context.Background())
	if ch.Session == nil {
		defer cancel()
		p.resolve(ctx, gen, nil)
		return
	}
	if p.begin(gen, ch.Session) {
		go func() {
			defer cancel()
			p.fetchProfile(ctx, gen, ch.Session.User.ID)
		}()
	} else {
		cancel()
	}
}

// loadContext bounds async loads by the load timeout and by Dispose.
func (p *RealAuth) loadContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.loadTimeout)
	stop := context.AfterFunc(p.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (p *RealAuth) resolve(ctx context.Context, gen uint64, sess *Session) {
	if sess == nil {
		p.updateIfCurrent(gen, func(st *State) {
			st.User = nil
			st.Profile = nil
			st.Session = nil
			st.Loading = false
			st.Status = StatusAnonymous
		})
		return
	}
	if p.begin(gen, sess) {
		p.fetchProfile(ctx, gen, sess.User.ID)
	}
}

// begin publishes the identity of sess and marks the profile as loading.
func (p *RealAuth) begin(gen uint64, sess *Session) bool {
	usr := sess.User
	return p.updateIfCurrent(gen, func(st *State) {
		if st.User == nil || st.User.ID != usr.ID {
			st.Profile = nil
		}
		st.User = &usr
		st.Session = sess
		st.Loading = true
		st.Status = StatusLoading
	})
}

// fetchProfile settles the identity of generation gen; a failed fetch leaves the profile absent.
func (p *RealAuth) fetchProfile(ctx context.Context, gen uint64, userID string) {
	var profile *user.Profile
	prof, err := p.backend.FetchProfile(ctx, userID)
	if err != nil {
		fErr := &core.ProfileFetchError{UserID: userID, Err: err}
		p.logger.Error(fErr.Error(), fErr)
	} else {
		profile = &prof
	}

	if !p.updateIfCurrent(gen, func(st *State) {
		st.Profile = profile
		st.Loading = false
		st.Status = StatusAuthenticated
	}) {
		p.logger.Debug(fmt.Sprintf("discarding stale profile of user %q", userID))
	}
}

func (p *RealAuth) SignUp(ctx context.Context, req SignUpRequest) error {
	if err := p.backend.SignUp(ctx, req); err != nil {
		aErr := asAuthError("sign up", err)
		p.notify(failure("Sign Up Failed", aErr))
		return aErr
	}
	p.notify(info("Account Created", "Please check your email to confirm your account."))
	return nil
}

func (p *RealAuth) SignIn(ctx context.Context, email, password string) error {
	if _, err := p.backend.SignInWithPassword(ctx, email, password); err != nil {
		aErr := asAuthError("sign in", err)
		p.notify(failure("Sign In Failed", aErr))
		return aErr
	}
	return nil
}

// SignOut always clears the local state; a remote failure is only logged.
func (p *RealAuth) SignOut(ctx context.Context) error {
	if err := p.backend.SignOut(ctx); err != nil {
		p.logger.Error(fmt.Sprintf("signing out: %v", err), err)
	}
	p.clear()
	p.notify(info("Signed Out", "You have been successfully signed out."))
	return nil
}

func (p *RealAuth) UpdateProfile(ctx context.Context, upd user.ProfileUpdate) error {
	usr, _, err := p.currentIdentity()
	if err != nil {
		return err
	}
	if _, err = p.backend.UpdateProfile(ctx, usr.ID, upd); err != nil {
		p.notify(failure("Update Failed", err))
		return err
	}
	p.mergeProfile(usr.ID, upd)
	p.notify(info("Profile Updated", "Your profile has been updated successfully."))
	return nil
}

func (p *RealAuth) DemoLogin(context.Context, user.Role) error {
	return ErrDemoDisabled
}

func (p *RealAuth) Dispose() {
	p.cancel()
	p.mu.Lock()
	unsub := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	p.dispose()
}

func asAuthError(op string, err error) error {
	if core.IsAuthError(err) {
		return err
	}
	return core.NewAuthError(op, err)
}
