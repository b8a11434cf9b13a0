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

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/exercise"
	"github.com/yekiapp/yeki/core/release"
	"github.com/yekiapp/yeki/core/stats"
	"github.com/yekiapp/yeki/core/user"
	metricsvc "github.com/yekiapp/yeki/services/metrics"
	"github.com/yekiapp/yeki/storage/tokenstore"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Tokens     tokenstore.Store
		Metrics    *metricsvc.Metrics // optional

		UserSvc       *user.Service
		CurriculumSvc *curriculum.Service
		ExerciseSvc   *exercise.Service
		StatsSvc      *stats.Service
		ReleaseSvc    *release.Service
	}

	Server struct {
		address  string
		app      *echo.Echo
		deps     *Deps
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

// NewServer sets up the API routes. A nil shutdown channel is replaced by one
// listening for SIGINT and SIGTERM.
func NewServer(address string, shutdown chan os.Signal, deps *Deps) *Server {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	}
	s := &Server{
		address:  address,
		app:      echo.New(),
		deps:     deps,
		auth:     newAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	if s.deps.Metrics != nil {
		s.app.Use(metricsMiddleware(s.deps.Metrics))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := s.auth.middleware(s.deps.Tokens)
	actor := actorMiddleware(s.deps.UserSvc)

	registerAuthAPI(v1, jwt, actor, s.auth, s.deps)
	registerUserAPI(v1, jwt, actor, s.deps)
	registerCurriculumAPI(v1, jwt, actor, s.deps)
	registerExerciseAPI(v1, jwt, actor, s.deps)
	registerStatsAPI(v1, jwt, actor, s.deps)
	registerReleaseAPI(v1, jwt, actor, s.deps)
}

// Start blocks serving requests; a failure is sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

func metricsMiddleware(m *metricsvc.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err) // commits the response so the status is known
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(ctx.Request().Method, route, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
