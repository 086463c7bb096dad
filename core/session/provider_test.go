package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type notifications struct {
	mu   sync.Mutex
	list []Notification
}

func (n *notifications) Notify(notif Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notif)
}

func (n *notifications) last() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.list) == 0 {
		return Notification{}
	}
	return n.list[len(n.list)-1]
}

type fakeBackend struct {
	mu         sync.Mutex
	session    *Session
	profiles   map[string]user.Profile
	listeners  map[int]func(Change)
	nextID     int
	fetchCalls int
	updates    []user.ProfileUpdate
	fetchGate  chan struct{} // FetchProfile blocks on it when set

	signInErr, signUpErr, signOutErr, fetchErr, updateErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		profiles: map[string]user.Profile{
			"u1": {ID: "p1", UserID: "u1", TenantID: "t1", Role: user.RoleTeacher, FirstName: "Sarah", LastName: "Teacher", Email: "t@test.test"},
		},
		listeners: make(map[int]func(Change)),
	}
}

func (b *fakeBackend) emit(ch Change) {
	b.mu.Lock()
	fns := make([]func(Change), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}

func (b *fakeBackend) GetSession(context.Context) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session, nil
}

func (b *fakeBackend) OnSessionChange(fn func(Change)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *fakeBackend) SignInWithPassword(_ context.Context, email, _ string) (*Session, error) {
	if b.signInErr != nil {
		return nil, b.signInErr
	}
	sess := &Session{ID: "s1", User: User{ID: "u1", Email: email}, AccessToken: "token", TokenType: "bearer"}
	b.mu.Lock()
	b.session = sess
	b.mu.Unlock()
	b.emit(Change{Event: EventSignedIn, Session: sess})
	return sess, nil
}

func (b *fakeBackend) SignUp(context.Context, SignUpRequest) error { return b.signUpErr }

func (b *fakeBackend) SignOut(context.Context) error {
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
	b.emit(Change{Event: EventSignedOut})
	return b.signOutErr
}

func (b *fakeBackend) FetchProfile(ctx context.Context, userID string) (user.Profile, error) {
	b.mu.Lock()
	b.fetchCalls++
	gate := b.fetchGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return user.Profile{}, ctx.Err()
		}
	}
	if b.fetchErr != nil {
		return user.Profile{}, b.fetchErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profiles[userID], nil
}

func (b *fakeBackend) UpdateProfile(_ context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, upd)
	if b.updateErr != nil {
		return user.Profile{}, b.updateErr
	}
	prof := upd.Apply(b.profiles[userID])
	b.profiles[userID] = prof
	return prof, nil
}

func (b *fakeBackend) calls() (fetches, updates int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetchCalls, len(b.updates)
}

func newRealAuth(t *testing.T, backend *fakeBackend) (*RealAuth, *notifications) {
	notifs := new(notifications)
	p := NewRealAuth(backend, notifs, nopLogger{}, time.Second)
	t.Cleanup(p.Dispose)
	return p, notifs
}

func wait(t *testing.T, p Provider) State {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
	return p.State()
}

func TestRealAuth_Init(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		p, _ := newRealAuth(t, newFakeBackend())
		st := p.State()
		assert.True(t, st.Loading)
		assert.Equal(t, StatusUninitialized, st.Status)

		p.Init(context.Background())
		st = wait(t, p)
		assert.False(t, st.Loading)
		assert.Equal(t, StatusAnonymous, st.Status)
		assert.Nil(t, st.User)
		assert.Nil(t, st.Profile)
	})

	t.Run("persisted session", func(t *testing.T) {
		backend := newFakeBackend()
		backend.session = &Session{ID: "s1", User: User{ID: "u1"}}
		p, _ := newRealAuth(t, backend)

		p.Init(context.Background())
		st := wait(t, p)
		assert.Equal(t, StatusAuthenticated, st.Status)
		require.NotNil(t, st.Profile)
		assert.Equal(t, user.RoleTeacher, st.Profile.Role)
		assert.Equal(t, "s1", st.Session.ID)
	})

	t.Run("profile fetch failure", func(t *testing.T) {
		backend := newFakeBackend()
		backend.session = &Session{ID: "s1", User: User{ID: "u1"}}
		backend.fetchErr = errors.New("db down")
		p, _ := newRealAuth(t, backend)

		p.Init(context.Background())
		st := wait(t, p)
		assert.False(t, st.Loading)
		assert.Equal(t, StatusAuthenticated, st.Status)
		assert.NotNil(t, st.User)
		assert.Nil(t, st.Profile)
	})
}

func TestRealAuth_SignIn(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p, _ := newRealAuth(t, newFakeBackend())
		p.Init(context.Background())
		wait(t, p)

		require.NoError(t, p.SignIn(context.Background(), "t@test.test", "pwd"))
		st := wait(t, p)
		assert.Equal(t, StatusAuthenticated, st.Status)
		assert.Equal(t, "u1", st.User.ID)
		require.NotNil(t, st.Profile)
		assert.Equal(t, "p1", st.Profile.ID)
	})

	t.Run("failure", func(t *testing.T) {
		backend := newFakeBackend()
		backend.signInErr = errors.New("invalid credentials")
		p, notifs := newRealAuth(t, backend)
		p.Init(context.Background())
		before := wait(t, p)

		err := p.SignIn(context.Background(), "t@test.test", "bad")
		require.Error(t, err)
		assert.True(t, core.IsAuthError(err))
		assert.Equal(t, "invalid credentials", err.Error())
		assert.Equal(t, before, p.State())
		assert.Equal(t, Notification{Title: "Sign In Failed", Description: "invalid credentials", Variant: VariantDestructive}, notifs.last())
	})
}

func TestRealAuth_SignUp(t *testing.T) {
	backend := newFakeBackend()
	p, notifs := newRealAuth(t, backend)

	require.NoError(t, p.SignUp(context.Background(), SignUpRequest{Email: "new@test.test"}))
	assert.Equal(t, "Account Created", notifs.last().Title)

	backend.signUpErr = errors.New("email taken")
	err := p.SignUp(context.Background(), SignUpRequest{Email: "new@test.test"})
	assert.True(t, core.IsAuthError(err))
	assert.Equal(t, "Sign Up Failed", notifs.last().Title)
	assert.Equal(t, VariantDestructive, notifs.last().Variant)
}

func TestRealAuth_SignOut(t *testing.T) {
	backend := newFakeBackend()
	backend.signOutErr = errors.New("network down")
	p, notifs := newRealAuth(t, backend)
	p.Init(context.Background())
	wait(t, p)
	require.NoError(t, p.SignIn(context.Background(), "t@test.test", "pwd"))
	wait(t, p)

	// a failed remote sign out still clears the local state
	require.NoError(t, p.SignOut(context.Background()))
	st := p.State()
	assert.Nil(t, st.User)
	assert.Nil(t, st.Profile)
	assert.Nil(t, st.Session)
	assert.Equal(t, StatusAnonymous, st.Status)
	assert.Equal(t, "Signed Out", notifs.last().Title)

	err := p.UpdateProfile(context.Background(), user.ProfileUpdate{FirstName: strPtr("Bob")})
	assert.Equal(t, core.ErrNoUser, err)
	_, updates := backend.calls()
	assert.Zero(t, updates, "no remote call without a user")
}

func TestRealAuth_UpdateProfile(t *testing.T) {
	backend := newFakeBackend()
	p, notifs := newRealAuth(t, backend)
	p.Init(context.Background())
	wait(t, p)
	require.NoError(t, p.SignIn(context.Background(), "t@test.test", "pwd"))
	wait(t, p)
	fetchesBefore, _ := backend.calls()

	require.NoError(t, p.UpdateProfile(context.Background(), user.ProfileUpdate{Phone: strPtr("+243 999 000 111")}))
	st := p.State()
	assert.Equal(t, "+243 999 000 111", st.Profile.Phone)
	assert.Equal(t, "Sarah", st.Profile.FirstName)
	assert.Equal(t, "Profile Updated", notifs.last().Title)

	fetchesAfter, updates := backend.calls()
	assert.Equal(t, fetchesBefore, fetchesAfter, "merged without refetch")
	assert.Equal(t, 1, updates)

	backend.updateErr = errors.New("constraint violation")
	err := p.UpdateProfile(context.Background(), user.ProfileUpdate{LastName: strPtr("X")})
	assert.EqualError(t, err, "constraint violation")
	assert.Equal(t, "Teacher", p.State().Profile.LastName)
	assert.Equal(t, "Update Failed", notifs.last().Title)
}

func TestRealAuth_staleProfileFetchIsDiscarded(t *testing.T) {
	backend := newFakeBackend()
	gate := make(chan struct{})
	backend.fetchGate = gate
	p, _ := newRealAuth(t, backend)

	require.NoError(t, p.SignIn(context.Background(), "t@test.test", "pwd"))
	assert.True(t, p.State().Loading)

	require.NoError(t, p.SignOut(context.Background()))
	close(gate) // the in-flight fetch now completes

	assert.Never(t, func() bool {
		st := p.State()
		return st.Profile != nil || st.User != nil
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StatusAnonymous, p.State().Status)
}

func TestRealAuth_externalRevocation(t *testing.T) {
	backend := newFakeBackend()
	p, _ := newRealAuth(t, backend)
	p.Init(context.Background())
	wait(t, p)
	require.NoError(t, p.SignIn(context.Background(), "t@test.test", "pwd"))
	wait(t, p)

	backend.emit(Change{Event: EventSignedOut})
	st := p.State()
	assert.Equal(t, StatusAnonymous, st.Status)
	assert.Nil(t, st.User)
	assert.False(t, st.Loading)
}

func TestRealAuth_DemoLoginDisabled(t *testing.T) {
	p, _ := newRealAuth(t, newFakeBackend())
	assert.Equal(t, ErrDemoDisabled, p.DemoLogin(context.Background(), user.RoleAdmin))
}

func TestRealAuth_SubscribeDispose(t *testing.T) {
	backend := newFakeBackend()
	notifs := new(notifications)
	p := NewRealAuth(backend, notifs, nopLogger{}, time.Second)

	var mu sync.Mutex
	var seen []Status
	unsubscribe := p.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})

	p.Init(context.Background())
	wait(t, p)
	unsubscribe()
	unsubscribe() // idempotent
	require.NoError(t, p.SignIn(context.Background(), "t@test.test", "pwd"))
	wait(t, p)

	mu.Lock()
	assert.Equal(t, []Status{StatusLoading, StatusAnonymous}, seen)
	mu.Unlock()

	p.Dispose()
	backend.mu.Lock()
	assert.Empty(t, backend.listeners)
	backend.mu.Unlock()
}

func TestDemoAuth(t *testing.T) {
	notifs := new(notifications)
	p := NewDemoAuth(notifs, nopLogger{})
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	p.nowFunc = func() time.Time { return now }

	p.Init(context.Background())
	st := wait(t, p)
	assert.Equal(t, StatusAnonymous, st.Status)

	require.NoError(t, p.DemoLogin(context.Background(), user.RoleTeacher))
	st = p.State()
	assert.False(t, st.Loading)
	assert.Equal(t, StatusAuthenticated, st.Status)
	assert.Equal(t, &User{ID: "demo-teacher", Email: "teacher@demo.com", CreatedAt: now}, st.User)
	assert.Equal(t, &user.Profile{
		ID:        "profile-teacher",
		UserID:    "demo-teacher",
		TenantID:  DemoTenantID,
		Role:      user.RoleTeacher,
		FirstName: "Sarah",
		LastName:  "Teacher",
		Email:     "teacher@demo.com",
	}, st.Profile)
	assert.Equal(t, DemoToken, st.Session.AccessToken)
	assert.Equal(t, now.Add(time.Hour), st.Session.ExpiresAt)
	assert.Equal(t, Notification{Title: "Demo Login Successful", Description: "Welcome to the TEACHER portal!", Variant: VariantDefault}, notifs.last())

	require.NoError(t, p.UpdateProfile(context.Background(), user.ProfileUpdate{Phone: strPtr("+243 999 000 111")}))
	assert.Equal(t, "+243 999 000 111", p.State().Profile.Phone)

	assert.True(t, core.IsAuthError(p.SignIn(context.Background(), "a@test.test", "pwd")))

	require.NoError(t, p.SignOut(context.Background()))
	assert.Equal(t, core.ErrNoUser, p.UpdateProfile(context.Background(), user.ProfileUpdate{}))

	assert.Error(t, p.DemoLogin(context.Background(), "JANITOR"))
	assert.Equal(t, "Demo Login Failed", notifs.last().Title)
}

func TestDemoIdentity_names(t *testing.T) {
	now := time.Now()
	for role, want := range map[user.Role]string{
		user.RoleAdmin:   "Admin User",
		user.RoleTeacher: "Sarah Teacher",
		user.RoleStudent: "John Johnson",
		user.RoleParent:  "John Johnson",
	} {
		_, prof, _ := demoIdentity(role, now)
		assert.Equal(t, want, prof.FullName())
	}
}

func TestNew_variant(t *testing.T) {
	conf := &core.Config{DemoMode: true}
	_, ok := New(conf, nil, nil, nopLogger{}).(*DemoAuth)
	assert.True(t, ok)

	conf.DemoMode = false
	p := New(conf, newFakeBackend(), nil, nopLogger{})
	defer p.Dispose()
	_, ok = p.(*RealAuth)
	assert.True(t, ok)
}

func strPtr(s string) *string { return &s }
