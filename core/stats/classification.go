package stats

import "github.com/trezcool/masomo-audit/core/ledger"

// Classification splits a domain's transaction types into income and expense-like types.
type Classification struct {
	Income  []string
	Expense []string
}

// Table is the single domain to classification lookup used by the aggregator and the ledger.
type Table map[ledger.Domain]Classification

var _ ledger.Classifier = Table{}

var DefaultClassification = Table{
	ledger.DomainCultureWing: {
		Income:  []string{"program_fee", "performance_income", "workshop_fee"},
		Expense: []string{"instructor_payment", "equipment_purchase", "venue_rent", "other_expense"},
	},
	ledger.DomainPublication: {
		Income:  []string{"revenue"},
		Expense: []string{"expense", "commission", "refund"},
	},
	ledger.DomainSchoolFee: {
		Income:  []string{"revenue"},
		Expense: []string{"refund", "expense"},
	},
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func (t Table) IsIncome(domain ledger.Domain, typ string) bool {
	return contains(t[domain].Income, typ)
}

func (t Table) Valid(domain ledger.Domain, typ string) bool {
	c := t[domain]
	return contains(c.Income, typ) || contains(c.Expense, typ)
}

// Types lists every type of the domain, income types first.
func (t Table) Types(domain ledger.Domain) []string {
	c := t[domain]
	types := make([]string, 0, len(c.Income)+len(c.Expense))
	types = append(types, c.Income...)
	return append(types, c.Expense...)
}
