// Package shared wires the dependencies common to the API server and the admin CLI.
package shared

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/auth"
	"github.com/trezcool/masomo-portals/core/user"
	emailsvc "github.com/trezcool/masomo-portals/services/email"
	eventsvc "github.com/trezcool/masomo-portals/services/events"
	"github.com/trezcool/masomo-portals/storage/cache"
	"github.com/trezcool/masomo-portals/storage/database"
	inmemdb "github.com/trezcool/masomo-portals/storage/database/inmem"
	sqlxrepos "github.com/trezcool/masomo-portals/storage/database/sqlx"
)

// Stack holds the long-lived dependencies of a process.
type Stack struct {
	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *sqlx.DB // nil when the in-memory repositories are used
	Redis      *redis.Client
	TokenStore auth.TokenStore
	Events     core.EventPublisher
	UserSvc    *user.Service
	AuthSvc    *auth.Service

	closers []func() error
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewStack connects to the configured backing services:
//   - PostgreSQL, unless demo mode is on or database.host is empty (in-memory repositories)
//   - Redis for tokens and revocations when redis.url is set (in-process otherwise)
//   - Kafka for auth events when kafka.brokers is set (logged otherwise)
func NewStack(ctx context.Context, conf *core.Config, logger core.Logger) (*Stack, error) {
	s := &Stack{Conf: conf}
	s.Validate, s.Translator = NewValidator()

	var (
		usrRepo  user.Repository
		sessRepo auth.SessionRepository
	)
	if conf.DemoMode || conf.Database.Host == "" {
		logger.Info("using in-memory repositories")
		mem := inmemdb.Open()
		usrRepo, sessRepo = inmemdb.NewUserRepository(mem), inmemdb.NewSessionRepository(mem)
	} else {
		db, err := setUpDB(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "setting up database")
		}
		s.DB = db
		s.closers = append(s.closers, db.Close)
		usrRepo, sessRepo = sqlxrepos.NewUserRepository(db), sqlxrepos.NewSessionRepository(db)
	}

	var bus auth.RevocationBus
	if conf.Redis.URL != "" {
		client, err := cache.Connect(ctx, conf.Redis.URL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = client
		s.closers = append(s.closers, client.Close)

		rBus, err := cache.NewRevocationBus(ctx, client, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		bus = rBus
		s.TokenStore = cache.NewTokenStore(client)
	} else {
		bus = auth.NewMemoryBus()
		s.TokenStore = auth.NewMemoryTokenStore()
	}
	s.closers = append(s.closers, bus.Close)

	if len(conf.Kafka.Brokers) > 0 {
		pub, err := eventsvc.NewKafkaPublisher(conf)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Events = pub
	} else {
		s.Events = eventsvc.NewLogPublisher(logger)
	}
	s.closers = append(s.closers, s.Events.Close)

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	s.UserSvc = user.NewService(usrRepo, s.Validate, conf)
	s.AuthSvc = auth.NewService(auth.ServiceDeps{
		Conf:     conf,
		Users:    s.UserSvc,
		Sessions: sessRepo,
		Bus:      bus,
		MailSvc:  mailSvc,
		Events:   s.Events,
		Logger:   logger,
	})
	return s, nil
}

// Close releases the backing services, in reverse order of acquisition.
func (s *Stack) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return errors.Wrap(firstErr, "closing stack")
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
