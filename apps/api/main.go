package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	echoapi "github.com/masomo/feeledger/apps/api/echo"
	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
	appfs "github.com/masomo/feeledger/fs"
	emailsvc "github.com/masomo/feeledger/services/email"
	logsvc "github.com/masomo/feeledger/services/logger"
	schedulersvc "github.com/masomo/feeledger/services/scheduler"
	inmemdb "github.com/masomo/feeledger/storage/database/inmem"
	sqlxrepos "github.com/masomo/feeledger/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB & repositories
	var (
		feeStore fee.Store
		usrRepo  user.Repository
	)
	if conf.Database.InMemory {
		db, err := inmemdb.Open()
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening in-memory database: %v", err), err)
		}
		feeStore = inmemdb.NewFeeStore(db)
		usrRepo = inmemdb.NewUserRepository(db)
		dbLogger.Warn("using the in-memory database: data is lost on exit")
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		feeStore = sqlxrepos.NewFeeStore(db)
		usrRepo = sqlxrepos.NewUserRepository(db)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(usrRepo)
	feeSvc := fee.NewService(conf, feeStore, usrSvc, mailSvc, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	translator := core.NewTranslator()
	validate := echoapi.NewValidator(translator)

	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	scheduler, err := schedulersvc.New(conf, feeSvc, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}
	scheduler.Start()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			FeeSvc:     feeSvc,
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
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		if err = scheduler.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop scheduler gracefully: %v", err), err)
		}
	}
}
