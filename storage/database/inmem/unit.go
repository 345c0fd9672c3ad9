package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/masomo-audit/core/unit"
)

type unitCatalog struct {
	db *unitTable
}

var _ unit.Catalog = (*unitCatalog)(nil)

func NewUnitCatalog(db *DB) unit.Catalog {
	return &unitCatalog{db: db.unit}
}

func (cat *unitCatalog) GetUnit(_ context.Context, kind unit.Kind, id int64) (unit.Unit, error) {
	cat.db.RLock()
	defer cat.db.RUnlock()

	if u, ok := cat.db.table[unitKey{kind, id}]; ok {
		res := *u
		res.PaymentMethods = append([]string{}, u.PaymentMethods...)
		return res, nil
	}
	return unit.Unit{}, unit.NotFound(kind, id)
}

func (cat *unitCatalog) SaveUnit(_ context.Context, u unit.Unit) (unit.Unit, error) {
	cat.db.Lock()
	defer cat.db.Unlock()

	u.PaymentMethods = unit.SplitMethods(unit.JoinMethods(u.PaymentMethods))
	stored := u
	cat.db.table[unitKey{u.Kind, u.ID}] = &stored
	return u, nil
}

func (cat *unitCatalog) QueryUnits(_ context.Context, kind unit.Kind) ([]unit.Unit, error) {
	cat.db.RLock()
	defer cat.db.RUnlock()

	units := make([]unit.Unit, 0)
	for key, u := range cat.db.table {
		if key.kind == kind {
			units = append(units, *u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}
