package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
)

type principalRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	Role         string `db:"role"`
	IsActive     bool   `db:"is_active"`
	PasswordHash []byte `db:"password_hash"`
	CreatedAt    dbTime `db:"created_at"`
	UpdatedAt    dbTime `db:"updated_at"`
	LastLogin    dbTime `db:"last_login"`
}

func (r principalRow) toPrincipal() principal.Principal {
	return principal.Principal{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		Role:         principal.Role(r.Role),
		IsActive:     r.IsActive,
		Grants:       principal.Grants{SchoolIDs: []int64{}, CultureIDs: []int64{}},
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.value(),
		UpdatedAt:    r.UpdatedAt.value(),
		LastLogin:    r.LastLogin.value(),
	}
}

type grantRow struct {
	PrincipalID string `db:"principal_id"`
	Scope       string `db:"scope"`
	UnitID      int64  `db:"unit_id"`
}

const principalColumns = `id, name, username, email, role, is_active, password_hash, created_at, updated_at, last_login`

type principalRepository struct {
	db *sqlx.DB
}

var _ principal.Repository = (*principalRepository)(nil)

func NewPrincipalRepository(db *sqlx.DB) principal.Repository {
	return &principalRepository{db: db}
}

func (repo *principalRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	q := `SELECT username, email FROM principals WHERE (username = ? OR (email <> '' AND email = ?))`
	args := []interface{}{username, email}
	if len(excludedIDs) > 0 {
		q += ` AND id NOT IN (` + placeholders(len(excludedIDs)) + `)`
		for _, id := range excludedIDs {
			args = append(args, id)
		}
	}

	var rows []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	for _, r := range rows {
		if r.Username == username {
			return principal.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return principal.ErrEmailExists
	}
	return nil
}

func (repo *principalRepository) CreatePrincipal(ctx context.Context, p principal.Principal) (principal.Principal, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO principals (` + principalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var lastLogin interface{}
	if !p.LastLogin.IsZero() {
		lastLogin = timeArg(repo.db, p.LastLogin)
	}
	_, err = tx.ExecContext(
		ctx, tx.Rebind(q),
		p.ID, p.Name, p.Username, p.Email, string(p.Role), p.IsActive, p.PasswordHash,
		timeArg(repo.db, p.CreatedAt), timeArg(repo.db, p.UpdatedAt), lastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return principal.Principal{}, core.NewValidationError(
				principal.ErrUsernameExists, core.FieldError{Field: "username", Error: principal.ErrUsernameExists.Error()},
			)
		}
		return principal.Principal{}, errors.Wrap(err, "inserting principal")
	}

	for _, id := range p.Grants.SchoolIDs {
		if err = insertGrant(ctx, tx, p.ID, unit.KindSchool, id); err != nil {
			return principal.Principal{}, err
		}
	}
	for _, id := range p.Grants.CultureIDs {
		if err = insertGrant(ctx, tx, p.ID, unit.KindCulture, id); err != nil {
			return principal.Principal{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return principal.Principal{}, errors.Wrap(err, "committing principal")
	}
	return repo.GetPrincipal(ctx, principal.GetFilter{ID: p.ID})
}

func insertGrant(ctx context.Context, ext sqlx.ExtContext, id string, kind unit.Kind, unitID int64) error {
	q := `INSERT INTO principal_grants (principal_id, scope, unit_id) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`
	_, err := ext.ExecContext(ctx, ext.Rebind(q), id, string(kind), unitID)
	return errors.Wrap(err, "inserting grant")
}

// loadGrants fills the grants of the given principals.
func (repo *principalRepository) loadGrants(ctx context.Context, ps []principal.Principal) error {
	if len(ps) == 0 {
		return nil
	}
	index := make(map[string]int, len(ps))
	args := make([]interface{}, 0, len(ps))
	for i, p := range ps {
		index[p.ID] = i
		args = append(args, p.ID)
	}

	q := `SELECT principal_id, scope, unit_id FROM principal_grants WHERE principal_id IN (` +
		placeholders(len(args)) + `) ORDER BY unit_id`
	var rows []grantRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "querying grants")
	}
	for _, r := range rows {
		p := &ps[index[r.PrincipalID]]
		switch unit.Kind(r.Scope) {
		case unit.KindSchool:
			p.Grants.SchoolIDs = append(p.Grants.SchoolIDs, r.UnitID)
		case unit.KindCulture:
			p.Grants.CultureIDs = append(p.Grants.CultureIDs, r.UnitID)
		}
	}
	return nil
}

func (repo *principalRepository) QueryPrincipals(ctx context.Context) ([]principal.Principal, error) {
	var rows []principalRow
	q := `SELECT ` + principalColumns + ` FROM principals ORDER BY username`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying principals")
	}
	ps := make([]principal.Principal, 0, len(rows))
	for _, r := range rows {
		ps = append(ps, r.toPrincipal())
	}
	if err := repo.loadGrants(ctx, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func (repo *principalRepository) GetPrincipal(ctx context.Context, filter principal.GetFilter) (principal.Principal, error) {
	var (
		row  principalRow
		q    = `SELECT ` + principalColumns + ` FROM principals WHERE `
		args []interface{}
		ref  string
	)
	if filter.ID != "" {
		q += `id = ?`
		args = append(args, filter.ID)
		ref = filter.ID
	} else {
		q += `username = ? OR (email <> '' AND email = ?)`
		args = append(args, filter.UsernameOrEmail, filter.UsernameOrEmail)
		ref = filter.UsernameOrEmail
	}

	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q+` LIMIT 1`), args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return principal.Principal{}, core.NewNotFoundError("principal", ref)
		}
		return principal.Principal{}, errors.Wrap(err, "getting principal")
	}
	ps := []principal.Principal{row.toPrincipal()}
	if err := repo.loadGrants(ctx, ps); err != nil {
		return principal.Principal{}, err
	}
	return ps[0], nil
}

// UpdatePrincipal saves the account fields; grants are only changed through AddGrant & RemoveGrant.
func (repo *principalRepository) UpdatePrincipal(ctx context.Context, p principal.Principal) (principal.Principal, error) {
	var lastLogin interface{}
	if !p.LastLogin.IsZero() {
		lastLogin = timeArg(repo.db, p.LastLogin)
	}
	q := `UPDATE principals
		SET name = ?, username = ?, email = ?, role = ?, is_active = ?, password_hash = ?, updated_at = ?, last_login = ?
		WHERE id = ?`
	res, err := repo.db.ExecContext(
		ctx, repo.db.Rebind(q),
		p.Name, p.Username, p.Email, string(p.Role), p.IsActive, p.PasswordHash,
		timeArg(repo.db, p.UpdatedAt), lastLogin, p.ID,
	)
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "updating principal")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return principal.Principal{}, core.NewNotFoundError("principal", p.ID)
	}
	return repo.GetPrincipal(ctx, principal.GetFilter{ID: p.ID})
}

func (repo *principalRepository) AddGrant(ctx context.Context, id string, kind unit.Kind, unitID int64) error {
	return insertGrant(ctx, repo.db, id, kind, unitID)
}

func (repo *principalRepository) RemoveGrant(ctx context.Context, id string, kind unit.Kind, unitID int64) error {
	q := `DELETE FROM principal_grants WHERE principal_id = ? AND scope = ? AND unit_id = ?`
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), id, string(kind), unitID)
	return errors.Wrap(err, "removing grant")
}
