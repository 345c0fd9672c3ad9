package access

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionVerify Action = "verify"
)

// Gate rejects out-of-scope requests before they reach the ledger or the aggregator.
type Gate struct {
	catalog unit.Catalog
	log     core.Logger
}

func NewGate(catalog unit.Catalog, log core.Logger) *Gate {
	return &Gate{catalog: catalog, log: log}
}

// Allow checks that `p` may perform `action` on the unit and returns the unit's catalog entry.
// Scope is checked before the unit lookup so that out-of-scope ids are Forbidden whether they exist or not.
// Every admin role holds the same actions on its scope; `action` is only reported.
func (g *Gate) Allow(ctx context.Context, p principal.Principal, kind unit.Kind, id int64, action Action) (unit.Unit, error) {
	ok, err := CanAccess(p, kind, id)
	if err != nil {
		return unit.Unit{}, err
	}
	if !ok {
		g.log.Warn("access denied", map[string]interface{}{
			"principal": p.ID,
			"kind":      kind,
			"unit":      id,
			"action":    action,
		})
		return unit.Unit{}, core.ErrForbidden
	}

	u, err := g.catalog.GetUnit(ctx, kind, id)
	if err != nil {
		if core.IsNotFound(err) {
			return unit.Unit{}, err
		}
		return unit.Unit{}, errors.Wrap(err, "fetching unit")
	}
	return u, nil
}
