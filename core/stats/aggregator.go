// Package stats derives income, expense and balance figures from the ledger.
// Nothing is persisted: every figure is recomputed from the current rows.
package stats

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/principal"
)

var NowFunc = time.Now

const maxMonths = 36

type Summary struct {
	Domain           ledger.Domain   `json:"domain"`
	UnitID           int64           `json:"unit_id"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	NetBalance       decimal.Decimal `json:"net_balance"`
	UnverifiedCount  int             `json:"unverified_count"`
	TransactionCount int             `json:"transaction_count"`
}

type MonthlySummary struct {
	Month        string          `json:"month"` // YYYY-MM
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	NetBalance   decimal.Decimal `json:"net_balance"`
}

// Lister is the ledger read path; it enforces the access gate.
type Lister interface {
	List(ctx context.Context, p principal.Principal, filter ledger.QueryFilter) ([]ledger.Transaction, error)
}

type Aggregator struct {
	ledger  Lister
	classes Table
}

func NewAggregator(lister Lister, classes Table) *Aggregator {
	return &Aggregator{ledger: lister, classes: classes}
}

// signed returns the income & expense contributions of tx.
// Reversals count with the opposite sign of their type's classification.
func (agg *Aggregator) signed(tx ledger.Transaction) (income, expense decimal.Decimal) {
	amount := tx.Amount
	if tx.IsReversal() {
		amount = amount.Neg()
	}
	if agg.classes.IsIncome(tx.Domain, tx.Type) {
		return amount, decimal.Zero
	}
	return decimal.Zero, amount
}

// Summarize totals every transaction of the unit, verified or not.
func (agg *Aggregator) Summarize(ctx context.Context, p principal.Principal, domain ledger.Domain, unitID int64) (Summary, error) {
	txs, err := agg.ledger.List(ctx, p, ledger.QueryFilter{Domain: domain, UnitID: unitID})
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Domain:       domain,
		UnitID:       unitID,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	for _, tx := range txs {
		income, expense := agg.signed(tx)
		s.TotalIncome = s.TotalIncome.Add(income)
		s.TotalExpense = s.TotalExpense.Add(expense)
		if !tx.Verified {
			s.UnverifiedCount++
		}
	}
	s.TransactionCount = len(txs)
	s.NetBalance = s.TotalIncome.Sub(s.TotalExpense)
	return s, nil
}

// Monthly breaks the last `months` calendar months (current one included, UTC) down, oldest first.
func (agg *Aggregator) Monthly(ctx context.Context, p principal.Principal, domain ledger.Domain, unitID int64, months int) ([]MonthlySummary, error) {
	if months < 1 || months > maxMonths {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "months", Error: "must be between 1 and 36"})
	}

	now := NowFunc().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	txs, err := agg.ledger.List(ctx, p, ledger.QueryFilter{Domain: domain, UnitID: unitID, RecordedFrom: start})
	if err != nil {
		return nil, err
	}

	res := make([]MonthlySummary, months)
	index := make(map[string]int, months)
	for i := range res {
		month := start.AddDate(0, i, 0).Format("2006-01")
		res[i] = MonthlySummary{Month: month, TotalIncome: decimal.Zero, TotalExpense: decimal.Zero}
		index[month] = i
	}
	for _, tx := range txs {
		i, ok := index[tx.RecordedAt.UTC().Format("2006-01")]
		if !ok {
			continue
		}
		income, expense := agg.signed(tx)
		res[i].TotalIncome = res[i].TotalIncome.Add(income)
		res[i].TotalExpense = res[i].TotalExpense.Add(expense)
	}
	for i := range res {
		res[i].NetBalance = res[i].TotalIncome.Sub(res[i].TotalExpense)
	}
	return res, nil
}
