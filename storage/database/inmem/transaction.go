package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/ledger"
)

type transactionRepository struct {
	db *transactionTable
}

var _ ledger.Repository = (*transactionRepository)(nil)

func NewTransactionRepository(db *DB) ledger.Repository {
	return &transactionRepository{db: db.transaction}
}

func (repo *transactionRepository) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, t := range repo.db.table {
		if tx.IdempotencyKey.Valid && t.IdempotencyKey == tx.IdempotencyKey &&
			t.Domain == tx.Domain && t.UnitID == tx.UnitID {
			return ledger.Transaction{}, ledger.ErrDuplicateKey
		}
		if tx.ReversalOf.Valid && t.ReversalOf == tx.ReversalOf {
			return ledger.Transaction{}, ledger.ErrDuplicateKey
		}
	}
	stored := tx
	repo.db.table[tx.ID] = &stored
	return tx, nil
}

func (repo *transactionRepository) GetTransaction(_ context.Context, id string) (ledger.Transaction, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.table[id]; ok {
		return *t, nil
	}
	return ledger.Transaction{}, core.NewNotFoundError("transaction", id)
}

func (repo *transactionRepository) GetByIdempotencyKey(_ context.Context, domain ledger.Domain, unitID int64, key string) (ledger.Transaction, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.table {
		if t.Domain == domain && t.UnitID == unitID && t.IdempotencyKey.Valid && t.IdempotencyKey.String == key {
			return *t, nil
		}
	}
	return ledger.Transaction{}, core.NewNotFoundError("transaction", key)
}

func matches(t *ledger.Transaction, filter ledger.QueryFilter) bool {
	if t.Domain != filter.Domain || t.UnitID != filter.UnitID {
		return false
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(t.Description), search) ||
			strings.Contains(strings.ToLower(t.CounterpartyName.String), search) ||
			strings.Contains(strings.ToLower(t.ReferenceNumber.String), search)) {
			return false
		}
	}
	if len(filter.Types) > 0 {
		var ok bool
		for _, typ := range filter.Types {
			if t.Type == typ {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if filter.Verified != nil && t.Verified != *filter.Verified {
		return false
	}
	if !filter.RecordedFrom.IsZero() && t.RecordedAt.Before(filter.RecordedFrom) {
		return false
	}
	if !filter.RecordedTo.IsZero() && t.RecordedAt.After(filter.RecordedTo) {
		return false
	}
	return true
}

// compare returns -1, 0 or 1 as a sorts before, with or after b on field.
func compare(a, b ledger.Transaction, field string) int {
	cmpTime := func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}
	switch field {
	case "amount":
		return a.Amount.Cmp(b.Amount)
	case "type":
		return strings.Compare(a.Type, b.Type)
	case "id":
		return strings.Compare(a.ID, b.ID)
	case "verified_at":
		return cmpTime(a.VerifiedAt.Time, b.VerifiedAt.Time)
	default:
		return cmpTime(a.RecordedAt, b.RecordedAt)
	}
}

func (repo *transactionRepository) QueryTransactions(_ context.Context, filter ledger.QueryFilter) ([]ledger.Transaction, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	txs := make([]ledger.Transaction, 0)
	for _, t := range repo.db.table {
		if matches(t, filter) {
			txs = append(txs, *t)
		}
	}

	ordering := make([]core.DBOrdering, 0, len(filter.Ordering)+1)
	ordering = append(ordering, filter.Ordering...)
	ordering = append(ordering, core.DBOrdering{Field: "id", Ascending: true})
	sort.SliceStable(txs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(txs[i], txs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return txs, nil
}

func (repo *transactionRepository) MarkVerified(_ context.Context, id, verifiedBy string, verifiedAt time.Time) (ledger.Transaction, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t, ok := repo.db.table[id]
	if !ok {
		return ledger.Transaction{}, core.NewNotFoundError("transaction", id)
	}
	if t.Verified {
		return ledger.Transaction{}, ledger.ErrAlreadyVerified
	}
	t.Verified = true
	t.VerifiedBy = null.StringFrom(verifiedBy)
	t.VerifiedAt = null.TimeFrom(verifiedAt)
	return *t, nil
}

func (repo *transactionRepository) DeleteUnverified(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	t, ok := repo.db.table[id]
	if !ok {
		return core.NewNotFoundError("transaction", id)
	}
	if t.Verified {
		return ledger.ErrVerifiedDelete
	}
	delete(repo.db.table, id)
	return nil
}
