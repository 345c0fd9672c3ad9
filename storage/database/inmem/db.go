// Package inmemdb keeps every repository in process memory; used by tests and local runs without a database.
package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/notification"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
)

type (
	DB struct {
		principal    *principalTable
		unit         *unitTable
		transaction  *transactionTable
		notification *notificationTable
	}

	principalTable struct {
		sync.RWMutex
		table map[string]*principal.Principal
	}

	unitTable struct {
		sync.RWMutex
		table map[unitKey]*unit.Unit
	}

	unitKey struct {
		kind unit.Kind
		id   int64
	}

	transactionTable struct {
		sync.RWMutex
		table map[string]*ledger.Transaction
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}
)

func Open() *DB {
	return &DB{
		principal:    &principalTable{table: make(map[string]*principal.Principal)},
		unit:         &unitTable{table: make(map[unitKey]*unit.Unit)},
		transaction:  &transactionTable{table: make(map[string]*ledger.Transaction)},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
	}
}
