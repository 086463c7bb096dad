package session

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
)

// store is the state shared by both Provider variants.
// Every identity change bumps gen; async work tagged with an older gen is discarded.
type store struct {
	notifier Notifier
	logger   core.Logger

	mu        sync.Mutex
	st        State
	gen       uint64
	settled   chan struct{} // closed while not loading
	observers map[int]Observer
	nextObsID int
	disposed  bool
}

func newStore(notifier Notifier, logger core.Logger) *store {
	if notifier == nil {
		notifier = discardNotifier
	}
	return &store{
		notifier:  notifier,
		logger:    logger,
		st:        State{Loading: true, Status: StatusUninitialized},
		settled:   make(chan struct{}),
		observers: make(map[int]Observer),
	}
}

func (s *store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *store) Wait(ctx context.Context) error {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *store) Subscribe(obs Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = obs

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *store) dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.gen++
	s.observers = make(map[int]Observer)
}

// update applies fn under the lock, keeps the settle channel in sync with Loading,
// then calls the observers outside the lock. fn returns false to abort.
func (s *store) update(fn func(st *State) bool) {
	s.mu.Lock()
	wasLoading := s.st.Loading
	if s.disposed || !fn(&s.st) {
		s.mu.Unlock()
		return
	}
	switch {
	case wasLoading && !s.st.Loading:
		close(s.settled)
	case !wasLoading && s.st.Loading:
		s.settled = make(chan struct{})
	}
	snapshot := s.st
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.mu.Unlock()

	for _, obs := range observers {
		obs(snapshot)
	}
}

// bump starts a new identity generation and returns it.
func (s *store) bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// updateIfCurrent is update, aborted if the identity generation moved past gen.
func (s *store) updateIfCurrent(gen uint64, fn func(st *State)) bool {
	applied := false
	s.update(func(st *State) bool {
		if s.gen != gen {
			return false
		}
		fn(st)
		applied = true
		return true
	})
	return applied
}

// clear drops the identity and settles as anonymous.
func (s *store) clear() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	s.update(func(st *State) bool {
		if st.Status == StatusAnonymous && st.User == nil && !st.Loading {
			return false // nothing changed
		}
		st.User = nil
		st.Profile = nil
		st.Session = nil
		st.Loading = false
		st.Status = StatusAnonymous
		return true
	})
}

// mergeProfile merges upd into the current profile, without any refetch.
func (s *store) mergeProfile(userID string, upd user.ProfileUpdate) {
	s.update(func(st *State) bool {
		if st.User == nil || st.Profile == nil || st.User.ID != userID {
			return false
		}
		merged := upd.Apply(*st.Profile)
		st.Profile = &merged
		return true
	})
}

func (s *store) notify(n Notification) {
	s.notifier.Notify(n)
}

// currentIdentity returns the signed in user & profile, or core.ErrNoUser.
func (s *store) currentIdentity() (User, user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.User == nil || s.st.Profile == nil {
		return User{}, user.Profile{}, core.ErrNoUser
	}
	return *s.st.User, *s.st.Profile, nil
}
