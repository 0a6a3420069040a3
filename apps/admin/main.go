package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
	appfs "github.com/masomo/feeledger/fs"
	emailsvc "github.com/masomo/feeledger/services/email"
	logsvc "github.com/masomo/feeledger/services/logger"
	"github.com/masomo/feeledger/storage/database"
	inmemdb "github.com/masomo/feeledger/storage/database/inmem"
	sqlxrepos "github.com/masomo/feeledger/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	cli, closeDB := newCommandLine(conf, logger)
	err := cli.run(os.Args)
	closeDB()
	if err != nil && err != errHelp {
		logger.Error(fmt.Sprintf("error: %v", err), err)
	}
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, logger core.Logger) (*commandLine, func()) {
	var (
		db       *sql.DB
		feeStore fee.Store
		usrRepo  user.Repository
		closeDB  = func() {}
	)
	if conf.Database.InMemory {
		mdb, err := inmemdb.Open()
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening in-memory database: %v", err), err)
		}
		feeStore = inmemdb.NewFeeStore(mdb)
		usrRepo = inmemdb.NewUserRepository(mdb)
	} else {
		xdb, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		closeDB = func() {
			if err := xdb.Close(); err != nil {
				logger.Error("Failed to close", err)
			}
		}
		db = xdb.DB
		feeStore = sqlxrepos.NewFeeStore(xdb)
		usrRepo = sqlxrepos.NewUserRepository(xdb)
	}

	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	usrSvc := user.NewService(usrRepo)
	return &commandLine{
		db:     db,
		usrSvc: usrSvc,
		feeSvc: fee.NewService(conf, feeStore, usrSvc, emailsvc.NewConsoleService(conf, logger), logger),
		out:    os.Stdout,
	}, closeDB
}
