package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/stats"
	logsvc "github.com/trezcool/masomo-audit/services/logger"
	"github.com/trezcool/masomo-audit/storage/database"
	sqlxrepos "github.com/trezcool/masomo-audit/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	principal.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator, stats.DefaultClassification)

	// start CLI
	cli := commandLine{
		db:         db,
		svc:        principal.NewService(sqlxrepos.NewPrincipalRepository(db)),
		catalog:    sqlxrepos.NewUnitCatalog(db),
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed: "+err.Error(), err)
		}
		os.Exit(1)
	}
}
