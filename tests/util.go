// Package testutil builds the fixtures shared by the test suites.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/access"
	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/notification"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/stats"
	"github.com/trezcool/masomo-audit/core/unit"
	"github.com/trezcool/masomo-audit/services/email"
	"github.com/trezcool/masomo-audit/services/events"
	"github.com/trezcool/masomo-audit/services/logger"
	"github.com/trezcool/masomo-audit/storage/database"
	"github.com/trezcool/masomo-audit/storage/database/inmem"
	"github.com/trezcool/masomo-audit/storage/database/sqlx"
)

// Password satisfies the password policy.
const Password = "Pa$$w0rd!Xyz"

// PrepareDB opens a migrated sqlite database in the test's temp dir.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewValidator returns a validator with every custom validation & translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	principal.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator, stats.DefaultClassification)
	return validate, translator
}

func CreatePrincipal(
	t *testing.T,
	repo principal.Repository,
	uname string,
	role principal.Role,
	isActive bool,
	grants principal.Grants,
) principal.Principal {
	t.Helper()
	now := principal.NowFunc().UTC()
	p := principal.Principal{
		ID:        uuid.NewString(),
		Name:      uname,
		Username:  uname,
		Email:     uname + "@test.cd",
		Role:      role,
		IsActive:  isActive,
		Grants:    grants,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.SetPassword(Password); err != nil {
		t.Fatalf("CreatePrincipal() failed: %v", err)
	}
	p, err := repo.CreatePrincipal(context.Background(), p)
	if err != nil {
		t.Fatalf("CreatePrincipal() failed: %v", err)
	}
	return p
}

func CreateUnit(t *testing.T, catalog unit.Catalog, kind unit.Kind, id int64, feePayment bool, methods ...string) unit.Unit {
	t.Helper()
	u, err := catalog.SaveUnit(context.Background(), unit.Unit{
		Kind:              kind,
		ID:                id,
		Name:              string(kind) + " unit",
		Location:          "Kinshasa",
		FeePaymentEnabled: feePayment,
		PaymentMethods:    methods,
	})
	if err != nil {
		t.Fatalf("CreateUnit() failed: %v", err)
	}
	return u
}

// Env wires every service on top of the in-memory repositories, with a synchronous event bus
// and a synchronous email mock.
type Env struct {
	Conf          *core.Config
	Log           core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	Principals    principal.Repository
	Units         unit.Catalog
	Transactions  ledger.Repository
	Notifications notification.Repository
	PrincipalSvc  *principal.Service
	Gate          *access.Gate
	Ledger        *ledger.Service
	Stats         *stats.Aggregator
	Dispatcher    *notification.Dispatcher
	Bus           *eventsvc.Bus
	Mailer        *emailsvc.ConsoleServiceMock
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	db := inmemdb.Open()
	return newEnv(
		t,
		inmemdb.NewPrincipalRepository(db),
		inmemdb.NewUnitCatalog(db),
		inmemdb.NewTransactionRepository(db),
		inmemdb.NewNotificationRepository(db),
	)
}

// NewSQLEnv is NewEnv backed by a migrated sqlite database.
func NewSQLEnv(t *testing.T) *Env {
	t.Helper()
	db := PrepareDB(t)
	return newEnv(
		t,
		sqlxrepos.NewPrincipalRepository(db),
		sqlxrepos.NewUnitCatalog(db),
		sqlxrepos.NewTransactionRepository(db),
		sqlxrepos.NewNotificationRepository(db),
	)
}

func newEnv(
	t *testing.T,
	principals principal.Repository,
	units unit.Catalog,
	transactions ledger.Repository,
	notifications notification.Repository,
) *Env {
	t.Helper()
	conf := core.NewTestConfig()
	log := logsvc.NewDiscardLogger()
	validate, translator := NewValidator()

	rules, err := notification.LoadRules("")
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}

	mailer := emailsvc.NewConsoleServiceMock(conf, log)
	bus := eventsvc.NewBus(log)
	dispatcher := notification.NewDispatcher(notifications, rules, mailer, conf, log)
	bus.Subscribe(dispatcher)

	gate := access.NewGate(units, log)
	ledgerSvc := ledger.NewService(transactions, gate, stats.DefaultClassification, bus, validate, translator, conf, log)

	return &Env{
		Conf:          conf,
		Log:           log,
		Validate:      validate,
		Translator:    translator,
		Principals:    principals,
		Units:         units,
		Transactions:  transactions,
		Notifications: notifications,
		PrincipalSvc:  principal.NewService(principals),
		Gate:          gate,
		Ledger:        ledgerSvc,
		Stats:         stats.NewAggregator(ledgerSvc, stats.DefaultClassification),
		Dispatcher:    dispatcher,
		Bus:           bus,
		Mailer:        mailer,
	}
}
