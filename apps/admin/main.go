package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/services/logger"
	"github.com/trezcool/workdesk/storage/database"
	"github.com/trezcool/workdesk/storage/database/sqlxrepo"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewLogger("ADMIN : ", conf)

	if conf.Database.Engine == database.EngineMemory {
		logger.Fatal("the admin CLI needs a persistent database (postgres or sqlite)")
	}

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:         db.DB,
		engine:     conf.Database.Engine,
		usrRepo:    sqlxrepo.NewUserRepository(db),
		validate:   validate,
		translator: translator,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
