package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/apps/api/echo"
	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/task"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/services/changefeed/memfeed"
	"github.com/trezcool/workdesk/services/changefeed/pgfeed"
	"github.com/trezcool/workdesk/services/email"
	"github.com/trezcool/workdesk/services/logger"
	"github.com/trezcool/workdesk/storage/database"
	"github.com/trezcool/workdesk/storage/database/inmem"
	"github.com/trezcool/workdesk/storage/database/sqlxrepo"
)

type stores struct {
	users    user.Repository
	tasks    task.Repository
	messages message.Repository
	feed     livesync.Feed
	close    func()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewLogger("API : ", conf)
	dbLogger := logsvc.NewLogger("DB : ", conf)

	// set up DB & change feed
	st, err := setUpStores(conf, dbLogger)
	if err != nil {
		return errors.Wrap(err, "setting up database")
	}
	defer st.close()

	// set up services
	mailSvc := emailsvc.NewService(conf, logger)
	usrSvc := user.NewService(st.users, mailSvc, conf)
	taskSvc := task.NewService(st.tasks, usrSvc)
	msgSvc := message.NewService(st.messages, usrSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("db").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			TaskSvc:    taskSvc,
			MsgSvc:     msgSvc,
			Feed:       st.feed,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		return errors.Wrap(err, "server error")

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				return errors.Wrap(err, "could not force stop server")
			}
		}
	}
	return nil
}

// setUpStores opens the configured engine. Postgres notifies changes itself through its triggers;
// the other engines publish their writes to an in-process broker.
func setUpStores(conf *core.Config, logger core.Logger) (*stores, error) {
	if conf.Database.Engine == database.EngineMemory {
		broker := memfeed.NewBroker(conf.Feed.BufferSize, logger)
		db := inmemdb.Open(broker)
		return &stores{
			users:    inmemdb.NewUserRepository(db),
			tasks:    inmemdb.NewTaskRepository(db),
			messages: inmemdb.NewMessageRepository(db),
			feed:     broker,
			close:    func() { _ = broker.Close() },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}

	if conf.Database.Engine == database.EnginePostgres {
		feed, err := pgfeed.New(database.DSN(conf), sqlxrepo.NewRowLoader(db), conf.Feed, logger)
		if err != nil {
			closeDB()
			return nil, err
		}
		return &stores{
			users:    sqlxrepo.NewUserRepository(db),
			tasks:    sqlxrepo.NewTaskRepository(db, nil),
			messages: sqlxrepo.NewMessageRepository(db, nil),
			feed:     feed,
			close: func() {
				_ = feed.Close()
				closeDB()
			},
		}, nil
	}

	broker := memfeed.NewBroker(conf.Feed.BufferSize, logger)
	return &stores{
		users:    sqlxrepo.NewUserRepository(db),
		tasks:    sqlxrepo.NewTaskRepository(db, broker),
		messages: sqlxrepo.NewMessageRepository(db, broker),
		feed:     broker,
		close: func() {
			_ = broker.Close()
			closeDB()
		},
	}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
