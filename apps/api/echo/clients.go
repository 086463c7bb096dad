package echoapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/auth"
	"github.com/trezcool/masomo-portals/core/session"
)

const maxQueuedNotifications = 50

// instance is the server side half of one browser: its provider, and the notifications
// it emitted that the browser did not collect yet.
type instance struct {
	id       string
	provider session.Provider
	client   *auth.Client // nil in demo mode

	mu       sync.Mutex
	queue    []session.Notification
	lastSeen time.Time

	notifications auth.Listeners[session.Notification]
}

var _ session.Notifier = (*instance)(nil)

func (inst *instance) Notify(n session.Notification) {
	inst.mu.Lock()
	inst.queue = append(inst.queue, n)
	if over := len(inst.queue) - maxQueuedNotifications; over > 0 {
		inst.queue = inst.queue[over:]
	}
	inst.mu.Unlock()
	inst.notifications.Emit(n)
}

// drain returns the queued notifications and empties the queue.
func (inst *instance) drain() []session.Notification {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := inst.queue
	inst.queue = nil
	if out == nil {
		out = []session.Notification{}
	}
	return out
}

func (inst *instance) touch(now time.Time) {
	inst.mu.Lock()
	inst.lastSeen = now
	inst.mu.Unlock()
}

func (inst *instance) idleSince(now time.Time) time.Duration {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return now.Sub(inst.lastSeen)
}

func (inst *instance) dispose() {
	inst.provider.Dispose()
	if inst.client != nil {
		inst.client.Close()
	}
	inst.notifications.Clear()
}

// registry holds the application instances, keyed by client ID.
type registry struct {
	conf       *core.Config
	authSvc    *auth.Service
	tokenStore auth.TokenStore
	logger     core.Logger
	metrics    *metrics
	nowFunc    func() time.Time // mockable

	mu        sync.Mutex
	instances map[string]*instance
	done      chan struct{}
	closeOnce sync.Once
}

func newRegistry(conf *core.Config, authSvc *auth.Service, store auth.TokenStore, logger core.Logger, m *metrics) *registry {
	if store == nil {
		store = auth.NewMemoryTokenStore()
	}
	return &registry{
		conf:       conf,
		authSvc:    authSvc,
		tokenStore: store,
		logger:     logger,
		metrics:    m,
		nowFunc:    time.Now,
		instances:  make(map[string]*instance),
		done:       make(chan struct{}),
	}
}

// get returns the instance of clientID, creating it when unknown.
// An unusable clientID is replaced by a fresh one. created reports whether the instance is new.
func (r *registry) get(clientID string) (inst *instance, created bool) {
	if _, err := uuid.Parse(clientID); err != nil {
		clientID = uuid.NewString()
	}
	now := r.nowFunc()

	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[clientID]; ok {
		inst.touch(now)
		return inst, false
	}

	inst = &instance{id: clientID, lastSeen: now}
	var backend session.Backend
	if !r.conf.DemoMode {
		inst.client = auth.NewClient(r.authSvc, r.tokenStore, clientID, r.logger)
		backend = inst.client
	}
	inst.provider = session.New(r.conf, backend, inst, r.logger)
	r.instances[clientID] = inst
	r.metrics.liveClients.Set(float64(len(r.instances)))
	return inst, true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// evictIdle disposes of the instances unseen for longer than the idle timeout.
// Their stored tokens are kept, so that a later visit restores the session.
func (r *registry) evictIdle() int {
	now := r.nowFunc()
	var evicted []*instance

	r.mu.Lock()
	for id, inst := range r.instances {
		if inst.idleSince(now) > r.conf.Server.ClientIdleTimeout {
			delete(r.instances, id)
			evicted = append(evicted, inst)
		}
	}
	r.metrics.liveClients.Set(float64(len(r.instances)))
	r.mu.Unlock()

	for _, inst := range evicted {
		inst.dispose()
	}
	if len(evicted) > 0 {
		r.logger.Debug(fmt.Sprintf("evicted %d idle client(s)", len(evicted)))
	}
	return len(evicted)
}

func (r *registry) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.done:
			return
		}
	}
}

func (r *registry) close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		instances := r.instances
		r.instances = make(map[string]*instance)
		r.metrics.liveClients.Set(0)
		r.mu.Unlock()
		for _, inst := range instances {
			inst.dispose()
		}
	})
}

// init starts the provider of a new instance and waits, at most conf.Server.SessionLoadTimeout,
// for it to settle.
func (r *registry) init(ctx context.Context, inst *instance) {
	inst.provider.Init(ctx)
	r.wait(ctx, inst)
}

// check re-validates the session held by a known instance: an expired one gets refreshed,
// a revoked one signs the instance out. Demo instances have nothing to check.
func (r *registry) check(ctx context.Context, inst *instance) {
	if inst.client == nil {
		return
	}
	if err := inst.client.Check(ctx); err != nil {
		r.logger.Error(fmt.Sprintf("checking session of client %q: %v", inst.id, err), err)
	}
}

func (r *registry) wait(ctx context.Context, inst *instance) {
	waitCtx, cancel := context.WithTimeout(ctx, r.conf.Server.SessionLoadTimeout)
	defer cancel()
	_ = inst.provider.Wait(waitCtx)
}
