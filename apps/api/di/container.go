// Package di wires the API dependencies together with a dig.Container.
package di

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/quizzq/backend/apps/api/echo"
	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/ai"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
	emailsvc "github.com/quizzq/backend/services/email"
	llmsvc "github.com/quizzq/backend/services/llm"
	logsvc "github.com/quizzq/backend/services/logger"
	"github.com/quizzq/backend/services/ratelimit"
	"github.com/quizzq/backend/storage/database"
	sqlxrepos "github.com/quizzq/backend/storage/database/sqlx"
)

const setUpTimeout = 30 * time.Second

// DBLoggerParam injects the logger dedicated to the database.
type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	UserSvc    user.Service
	SchoolSvc  school.Service
	AISvc      ai.Service
	Meter      *usage.Meter
	Gate       *policy.Gate
	Limiter    ratelimit.Limiter
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), setUpTimeout)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newUserRepository(db core.DB) (user.Repository, usage.Store) {
	repo := sqlxrepos.NewUserRepository(db)
	return repo, repo
}

func newSchoolRepository(db core.DB) school.Repository {
	return sqlxrepos.NewSchoolRepository(db)
}

func newMeter(conf *core.Config, store usage.Store, logger core.Logger) *usage.Meter {
	loc, err := time.LoadLocation(conf.Usage.Timezone)
	if err != nil {
		logger.Warn(fmt.Sprintf("unknown usage timezone %q, falling back to UTC", conf.Usage.Timezone), err)
		loc = time.UTC
	}
	return usage.NewMeter(store, usage.Policy{
		FreeDailyLimit:  conf.Usage.FreeDailyLimit,
		ProMonthlyLimit: conf.Usage.ProMonthlyLimit,
	}, loc)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		SchoolSvc:  p.SchoolSvc,
		AISvc:      p.AISvc,
		Meter:      p.Meter,
		Gate:       p.Gate,
		Limiter:    p.Limiter,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns the API dependency injection container.
func New(opts ...dig.Option) *dig.Container {
	c := dig.New(opts...)

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newUserRepository))
	must(c.Provide(newSchoolRepository))
	must(c.Provide(newMeter))
	must(c.Provide(policy.NewGate))
	must(c.Provide(newEmailService))
	must(c.Provide(llmsvc.NewAssistant))
	must(c.Provide(ratelimit.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(school.NewService))
	must(c.Provide(ai.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits the program if a dependency could not be provided.
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
