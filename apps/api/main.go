package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	echoapi "github.com/trezcool/masomo-audit/apps/api/echo"
	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/access"
	"github.com/trezcool/masomo-audit/core/event"
	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/notification"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/stats"
	emailsvc "github.com/trezcool/masomo-audit/services/email"
	eventsvc "github.com/trezcool/masomo-audit/services/events"
	logsvc "github.com/trezcool/masomo-audit/services/logger"
	"github.com/trezcool/masomo-audit/storage/database"
	sqlxrepos "github.com/trezcool/masomo-audit/storage/database/sqlx"
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
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	rules, err := notification.LoadRules(conf.NotificationRulesPath)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading notification rules: %v", err), err)
	}
	dispatcher := notification.NewDispatcher(sqlxrepos.NewNotificationRepository(db), rules, mailSvc, conf, logger)

	var (
		publisher event.Publisher
		broker    *eventsvc.AMQP
	)
	switch conf.Events.Backend {
	case "amqp":
		if broker, err = eventsvc.DialAMQP(conf, logger); err != nil {
			logger.Fatal(fmt.Sprintf("setting up events: %v", err), err)
		}
		defer func() { _ = broker.Close() }()
		publisher = broker
	default:
		bus := eventsvc.NewBus(logger)
		bus.Subscribe(dispatcher)
		publisher = bus
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	principal.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator, stats.DefaultClassification)

	if err = core.ParseEmailTemplates(); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	gate := access.NewGate(sqlxrepos.NewUnitCatalog(db), logger)
	ledgerSvc := ledger.NewService(
		sqlxrepos.NewTransactionRepository(db),
		gate,
		stats.DefaultClassification,
		publisher,
		validate,
		translator,
		conf,
		logger,
	)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("events").Set(conf.Events.Backend)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			Validate:     validate,
			Translator:   translator,
			PrincipalSvc: principal.NewService(sqlxrepos.NewPrincipalRepository(db)),
			Ledger:       ledgerSvc,
			Stats:        stats.NewAggregator(ledgerSvc, stats.DefaultClassification),
			Dispatcher:   dispatcher,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		server.Start()
		return nil
	})
	if broker != nil {
		g.Go(func() error {
			return broker.Consume(gctx, dispatcher)
		})
	}

	// =========================================================================
	// Shutdown

	g.Go(func() error {
		select {
		case err := <-server.Errors():
			cancel()
			return err

		case sig := <-server.ShutdownSignal():
			logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		case <-gctx.Done():
			logger.Info("event consumer stopped: Start shutdown...")
		}
		cancel()

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not force stop server: %w", err)
			}
		}
		return nil
	})

	if err = g.Wait(); err != nil {
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
