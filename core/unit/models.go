// Package unit describes the organizational units (schools and culture categories) owned by the
// catalog subsystem. The audit ledger only reads them.
package unit

import (
	"context"
	"strings"

	"github.com/trezcool/masomo-audit/core"
)

type Kind string

const (
	KindSchool  Kind = "school"
	KindCulture Kind = "culture"
)

func (k Kind) Valid() bool {
	return k == KindSchool || k == KindCulture
}

type Unit struct {
	Kind                  Kind     `json:"kind"`
	ID                    int64    `json:"id"`
	Name                  string   `json:"name"`
	Location              string   `json:"location"`
	FeePaymentEnabled     bool     `json:"fee_payment_enabled"`
	PaymentMethods        []string `json:"payment_methods"`
	AdminApprovalRequired bool     `json:"admin_approval_required"`
}

// AcceptsPaymentMethod reports whether `method` is one of the unit's payment methods (case-insensitive).
func (u Unit) AcceptsPaymentMethod(method string) bool {
	method = core.CleanString(method, true /* lower */)
	for _, m := range u.PaymentMethods {
		if strings.ToLower(m) == method {
			return true
		}
	}
	return false
}

type Catalog interface {
	// GetUnit returns a *core.NotFoundError when the catalog has no metadata for the unit.
	GetUnit(ctx context.Context, kind Kind, id int64) (Unit, error)
	// SaveUnit creates or replaces a unit; used by provisioning tools only.
	SaveUnit(ctx context.Context, u Unit) (Unit, error)
	QueryUnits(ctx context.Context, kind Kind) ([]Unit, error)
}

// NotFound builds the error returned by catalogs for unknown units.
func NotFound(kind Kind, id int64) error {
	return core.NewNotFoundError(string(kind), id)
}

// JoinMethods / SplitMethods convert payment methods to and from their column representation.
func JoinMethods(methods []string) string {
	clean := make([]string, 0, len(methods))
	for _, m := range methods {
		if m = core.CleanString(m, true /* lower */); m != "" {
			clean = append(clean, m)
		}
	}
	return strings.Join(clean, ",")
}

func SplitMethods(col string) []string {
	if col == "" {
		return []string{}
	}
	return strings.Split(col, ",")
}
