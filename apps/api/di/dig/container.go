package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/yekiapp/yeki/apps/api/echo"
	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/exercise"
	"github.com/yekiapp/yeki/core/release"
	"github.com/yekiapp/yeki/core/stats"
	"github.com/yekiapp/yeki/core/user"
	docconvsvc "github.com/yekiapp/yeki/services/docconv"
	emailsvc "github.com/yekiapp/yeki/services/email"
	logsvc "github.com/yekiapp/yeki/services/logger"
	metricsvc "github.com/yekiapp/yeki/services/metrics"
	"github.com/yekiapp/yeki/storage/database"
	"github.com/yekiapp/yeki/storage/database/sqlxrepo"
	"github.com/yekiapp/yeki/storage/tokenstore"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newZap(conf *core.Config) *zap.Logger {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("building zap logger: %v", err)
	}
	return zl
}

func newLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newDBLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newTokenStore uses redis when an address is configured, the process memory otherwise.
func newTokenStore(conf *core.Config, logger core.Logger) tokenstore.Store {
	if conf.Redis.Address == "" {
		logger.Warn("no redis configured: revoked tokens are kept in memory")
		return tokenstore.NewMemoryStore()
	}
	rdb, err := tokenstore.NewRedisClient(context.Background(), conf.Redis)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return tokenstore.NewRedisStore(rdb)
}

func newCurriculumService(conf *core.Config, repo curriculum.Repository, usrSvc *user.Service, logger core.Logger) *curriculum.Service {
	svc := curriculum.NewService(repo, usrSvc, logger)
	svc.SetDocumentConverter(docconvsvc.New(conf.MediaBaseURL))
	usrSvc.SetPositionHolder(svc)
	return svc
}

func newExerciseService(
	repo exercise.Repository,
	curSvc *curriculum.Service,
	metrics *metricsvc.Metrics,
	logger core.Logger,
) *exercise.Service {
	svc := exercise.NewService(repo, curSvc, logger)
	svc.SetRecorder(metrics)
	return svc
}

func newStatsService(repo stats.Repository, usrSvc *user.Service, curSvc *curriculum.Service) *stats.Service {
	return stats.NewService(repo, usrSvc, curSvc)
}

type serverParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	Tokens        tokenstore.Store
	Metrics       *metricsvc.Metrics
	UserSvc       *user.Service
	CurriculumSvc *curriculum.Service
	ExerciseSvc   *exercise.Service
	StatsSvc      *stats.Service
	ReleaseSvc    *release.Service
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf.Server.Address, nil /* shutdown */, &echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		Tokens:        p.Tokens,
		Metrics:       p.Metrics,
		UserSvc:       p.UserSvc,
		CurriculumSvc: p.CurriculumSvc,
		ExerciseSvc:   p.ExerciseSvc,
		StatsSvc:      p.StatsSvc,
		ReleaseSvc:    p.ReleaseSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZap))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newValidator))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newTokenStore))
	must(c.Provide(metricsvc.New))

	must(c.Provide(sqlxrepo.NewUserRepository))
	must(c.Provide(sqlxrepo.NewCurriculumRepository))
	must(c.Provide(sqlxrepo.NewExerciseRepository))
	must(c.Provide(sqlxrepo.NewStatsRepository))
	must(c.Provide(sqlxrepo.NewReleaseRepository))

	must(c.Provide(user.NewService))
	must(c.Provide(newCurriculumService))
	must(c.Provide(newExerciseService))
	must(c.Provide(newStatsService))
	must(c.Provide(release.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
