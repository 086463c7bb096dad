package testutil

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/auth"
	"github.com/trezcool/masomo-portals/core/user"
	"github.com/trezcool/masomo-portals/services/email"
	"github.com/trezcool/masomo-portals/storage/database/inmem"
)

// StrongPassword satisfies the password policy.
const StrongPassword = "Sup3r$ecret!"

var confirmLinkRegex = regexp.MustCompile(`uid=([^&\s]+)&token=([^&\s]+)`)

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// Event is a published event.
type Event struct {
	Type    string
	Payload interface{}
	Key     string
}

// EventRecorder is a core.EventPublisher keeping every published event.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

var _ core.EventPublisher = (*EventRecorder)(nil)

func (r *EventRecorder) Publish(_ context.Context, eventType string, payload interface{}, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Type: eventType, Payload: payload, Key: key})
	return nil
}

func (r *EventRecorder) Close() error { return nil }

// Types returns the types of the published events, in order.
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// Clock tells the wall clock, moved forward by Advance.
type Clock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().UTC().Add(c.offset)
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// Deps is a fully wired, in-memory authentication stack.
type Deps struct {
	Conf     *core.Config
	DB       *inmemdb.DB
	Validate *validator.Validate
	Users    *user.Service
	Mail     *emailsvc.ConsoleService
	Events   *EventRecorder
	Bus      *auth.MemoryBus
	Clock    *Clock // of Auth
	Auth     *auth.Service
}

func NewDeps(conf *core.Config) *Deps {
	if conf == nil {
		conf = core.NewTestConfig()
	}
	validate, _ := NewValidator()
	db := inmemdb.Open()
	d := &Deps{
		Conf:     conf,
		DB:       db,
		Validate: validate,
		Users:    user.NewService(inmemdb.NewUserRepository(db), validate, conf),
		Mail:     emailsvc.NewConsoleServiceMock(conf, NopLogger{}),
		Events:   new(EventRecorder),
		Bus:      auth.NewMemoryBus(),
		Clock:    new(Clock),
	}
	d.Auth = auth.NewService(auth.ServiceDeps{
		Conf:     conf,
		Users:    d.Users,
		Sessions: inmemdb.NewSessionRepository(db),
		Bus:      d.Bus,
		MailSvc:  d.Mail,
		Events:   d.Events,
		Logger:   NopLogger{},
		NowFunc:  d.Clock.Now,
	})
	return d
}

// Detached returns an auth.Service sharing the storage of d but not its revocation bus,
// the way another process without a shared bus would see it.
func (d *Deps) Detached() *auth.Service {
	return auth.NewService(auth.ServiceDeps{
		Conf:     d.Conf,
		Users:    d.Users,
		Sessions: inmemdb.NewSessionRepository(d.DB),
		Bus:      auth.NewMemoryBus(),
		MailSvc:  d.Mail,
		Events:   new(EventRecorder),
		Logger:   NopLogger{},
		NowFunc:  d.Clock.Now,
	})
}

// CreateUser adds a confirmed, active user with StrongPassword.
func CreateUser(t *testing.T, d *Deps, email string, role user.Role) (user.Account, user.Profile) {
	t.Helper()
	acc, prof, err := d.Auth.AddUser(context.Background(), user.NewAccount{
		Email:     email,
		Password:  StrongPassword,
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return acc, prof
}

// ConfirmationLink extracts the (uid, token) of the last confirmation email sent to addr.
func ConfirmationLink(t *testing.T, d *Deps, addr string) (string, string) {
	t.Helper()
	msgs := d.Mail.SentMessages()
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if len(msg.To) == 0 || msg.To[0].Address != addr {
			continue
		}
		if m := confirmLinkRegex.FindStringSubmatch(msg.TextContent); m != nil {
			return m[1], m[2]
		}
	}
	t.Fatalf("ConfirmationLink(): no confirmation email sent to %s", addr)
	return "", ""
}
