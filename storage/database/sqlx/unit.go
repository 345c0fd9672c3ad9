package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core/unit"
)

type unitRow struct {
	Kind                  string `db:"kind"`
	ID                    int64  `db:"id"`
	Name                  string `db:"name"`
	Location              string `db:"location"`
	FeePaymentEnabled     bool   `db:"fee_payment_enabled"`
	PaymentMethods        string `db:"payment_methods"`
	AdminApprovalRequired bool   `db:"admin_approval_required"`
}

func (r unitRow) toUnit() unit.Unit {
	return unit.Unit{
		Kind:                  unit.Kind(r.Kind),
		ID:                    r.ID,
		Name:                  r.Name,
		Location:              r.Location,
		FeePaymentEnabled:     r.FeePaymentEnabled,
		PaymentMethods:        unit.SplitMethods(r.PaymentMethods),
		AdminApprovalRequired: r.AdminApprovalRequired,
	}
}

const unitColumns = `kind, id, name, location, fee_payment_enabled, payment_methods, admin_approval_required`

type unitCatalog struct {
	db *sqlx.DB
}

var _ unit.Catalog = (*unitCatalog)(nil)

func NewUnitCatalog(db *sqlx.DB) unit.Catalog {
	return &unitCatalog{db: db}
}

func (cat *unitCatalog) GetUnit(ctx context.Context, kind unit.Kind, id int64) (unit.Unit, error) {
	var row unitRow
	q := `SELECT ` + unitColumns + ` FROM units WHERE kind = ? AND id = ?`
	if err := cat.db.GetContext(ctx, &row, cat.db.Rebind(q), string(kind), id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return unit.Unit{}, unit.NotFound(kind, id)
		}
		return unit.Unit{}, errors.Wrap(err, "getting unit")
	}
	return row.toUnit(), nil
}

// SaveUnit upserts the unit.
func (cat *unitCatalog) SaveUnit(ctx context.Context, u unit.Unit) (unit.Unit, error) {
	q := `INSERT INTO units (` + unitColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			fee_payment_enabled = excluded.fee_payment_enabled,
			payment_methods = excluded.payment_methods,
			admin_approval_required = excluded.admin_approval_required`
	_, err := cat.db.ExecContext(
		ctx, cat.db.Rebind(q),
		string(u.Kind), u.ID, u.Name, u.Location, u.FeePaymentEnabled, unit.JoinMethods(u.PaymentMethods), u.AdminApprovalRequired,
	)
	if err != nil {
		return unit.Unit{}, errors.Wrap(err, "saving unit")
	}
	return cat.GetUnit(ctx, u.Kind, u.ID)
}

func (cat *unitCatalog) QueryUnits(ctx context.Context, kind unit.Kind) ([]unit.Unit, error) {
	var rows []unitRow
	q := `SELECT ` + unitColumns + ` FROM units WHERE kind = ? ORDER BY id`
	if err := cat.db.SelectContext(ctx, &rows, cat.db.Rebind(q), string(kind)); err != nil {
		return nil, errors.Wrap(err, "querying units")
	}
	units := make([]unit.Unit, 0, len(rows))
	for _, r := range rows {
		units = append(units, r.toUnit())
	}
	return units, nil
}
