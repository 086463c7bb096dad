package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/auth"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		AuthSvc        *auth.Service
		TokenStore     auth.TokenStore
		Validate       *validator.Validate
		Translator     ut.Translator
		Registry       *prometheus.Registry // a fresh one when nil
		DisableReqLogs bool
	}

	Server struct {
		conf       *core.Config
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator
		app        *echo.Echo
		clients    *registry
		metrics    *metrics
		errors     chan error
		shutdown   chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		conf:       deps.Conf,
		logger:     deps.Logger,
		validate:   deps.Validate,
		translator: deps.Translator,
		app:        echo.New(),
		metrics:    newMetrics(reg),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	s.clients = newRegistry(deps.Conf, deps.AuthSvc, deps.TokenStore, deps.Logger, s.metrics)
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(reg, deps.DisableReqLogs)
	return s
}

func (s *Server) setup(reg *prometheus.Registry, disableReqLogs bool) {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !disableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.SignalShutdown)
	s.app.Debug = s.conf.Debug
	s.app.HideBanner = true

	s.app.GET("/metrics", metricsHandler(reg))

	app := s.app.Group("", s.clientMiddleware)

	registerPortalRoutes(app, s)

	v1 := app.Group("/v1")
	registerAuthAPI(v1, s)
	registerSessionAPI(v1, s)
	registerProfileAPI(v1, s)
}

// Start listens on conf.Server.Address; any failure other than a graceful shutdown is sent to Errors.
func (s *Server) Start() {
	go s.clients.janitor(janitorInterval(s.conf.Server.ClientIdleTimeout))
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the owner of the Server to shut it down.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.release()
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	defer s.release()
	return s.app.Close()
}

func (s *Server) release() {
	signal.Stop(s.shutdown)
	s.clients.close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func janitorInterval(idle time.Duration) time.Duration {
	if iv := idle / 2; iv > time.Second {
		return iv
	}
	return time.Second
}
