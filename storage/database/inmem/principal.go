package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
)

type principalRepository struct {
	db *principalTable
}

var _ principal.Repository = (*principalRepository)(nil)

func NewPrincipalRepository(db *DB) principal.Repository {
	return &principalRepository{db: db.principal}
}

// clone copies p so that callers never share grant slices with the table.
func clone(p principal.Principal) principal.Principal {
	p.Grants = principal.Grants{
		SchoolIDs:  append([]int64{}, p.Grants.SchoolIDs...),
		CultureIDs: append([]int64{}, p.Grants.CultureIDs...),
	}
	p.PasswordHash = append([]byte(nil), p.PasswordHash...)
	return p
}

func (repo *principalRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, p := range repo.db.table {
		if excluded[p.ID] {
			continue
		}
		if p.Username == username {
			return principal.ErrUsernameExists
		}
		if email != "" && p.Email == email {
			return principal.ErrEmailExists
		}
	}
	return nil
}

func (repo *principalRepository) CreatePrincipal(_ context.Context, p principal.Principal) (principal.Principal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p = clone(p)
	repo.db.table[p.ID] = &p
	return clone(p), nil
}

func (repo *principalRepository) QueryPrincipals(_ context.Context) ([]principal.Principal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ps := make([]principal.Principal, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		ps = append(ps, clone(*p))
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Username < ps[j].Username })
	return ps, nil
}

func (repo *principalRepository) GetPrincipal(_ context.Context, filter principal.GetFilter) (principal.Principal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.table[filter.ID]; ok {
			return clone(*p), nil
		}
		return principal.Principal{}, core.NewNotFoundError("principal", filter.ID)
	}
	for _, p := range repo.db.table {
		if filter.UsernameOrEmail != "" && (p.Username == filter.UsernameOrEmail || p.Email == filter.UsernameOrEmail) {
			return clone(*p), nil
		}
	}
	return principal.Principal{}, core.NewNotFoundError("principal", filter.UsernameOrEmail)
}

// UpdatePrincipal saves the account fields; grants are only changed through AddGrant & RemoveGrant.
func (repo *principalRepository) UpdatePrincipal(_ context.Context, p principal.Principal) (principal.Principal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[p.ID]
	if !ok {
		return principal.Principal{}, core.NewNotFoundError("principal", p.ID)
	}
	p.Grants = orig.Grants
	p.CreatedAt = orig.CreatedAt
	p = clone(p)
	repo.db.table[p.ID] = &p
	return clone(p), nil
}

func (repo *principalRepository) AddGrant(_ context.Context, id string, kind unit.Kind, unitID int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.table[id]
	if !ok {
		return core.NewNotFoundError("principal", id)
	}
	if p.Grants.Has(kind, unitID) {
		return nil
	}
	if kind == unit.KindSchool {
		p.Grants.SchoolIDs = append(p.Grants.SchoolIDs, unitID)
	} else {
		p.Grants.CultureIDs = append(p.Grants.CultureIDs, unitID)
	}
	p.Grants.Sort()
	return nil
}

func (repo *principalRepository) RemoveGrant(_ context.Context, id string, kind unit.Kind, unitID int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.table[id]
	if !ok {
		return core.NewNotFoundError("principal", id)
	}
	remove := func(ids []int64) []int64 {
		kept := ids[:0]
		for _, gid := range ids {
			if gid != unitID {
				kept = append(kept, gid)
			}
		}
		return kept
	}
	if kind == unit.KindSchool {
		p.Grants.SchoolIDs = remove(p.Grants.SchoolIDs)
	} else {
		p.Grants.CultureIDs = remove(p.Grants.CultureIDs)
	}
	return nil
}
