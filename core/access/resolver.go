// Package access decides which organizational units a principal may act on.
package access

import (
	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
)

// Scope is the effective set of units a principal may act on.
type Scope struct {
	SchoolIDs     []int64 `json:"school_ids"`
	CultureIDs    []int64 `json:"culture_ids"`
	CanManageAll  bool    `json:"can_manage_all"`
	schoolLookup  map[int64]struct{}
	cultureLookup map[int64]struct{}
}

// Contains reports whether unit `id` of kind `kind` is in the scope.
func (s Scope) Contains(kind unit.Kind, id int64) bool {
	if s.CanManageAll {
		return true
	}
	var ok bool
	switch kind {
	case unit.KindSchool:
		_, ok = s.schoolLookup[id]
	case unit.KindCulture:
		_, ok = s.cultureLookup[id]
	}
	return ok
}

func lookup(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// Resolve computes the scope of `p` from its role and grant record.
// School admins only get their school grants, culture admins their culture grants:
// a grant never leaks into the other scope.
// An inactive principal or one with an unknown role resolves to core.ErrUnauthorized.
func Resolve(p principal.Principal) (Scope, error) {
	if p.ID == "" || !p.IsActive {
		return Scope{}, core.ErrUnauthorized
	}

	s := Scope{SchoolIDs: []int64{}, CultureIDs: []int64{}}
	switch p.Role {
	case principal.RoleSuperAdmin:
		s.CanManageAll = true
	case principal.RoleSchoolAdmin:
		s.SchoolIDs = append(s.SchoolIDs, p.Grants.SchoolIDs...)
	case principal.RoleCultureAdmin:
		s.CultureIDs = append(s.CultureIDs, p.Grants.CultureIDs...)
	default:
		return Scope{}, core.ErrUnauthorized
	}
	s.schoolLookup = lookup(s.SchoolIDs)
	s.cultureLookup = lookup(s.CultureIDs)
	return s, nil
}

// CanAccess reports whether `p` may act on unit `id` of kind `kind`.
func CanAccess(p principal.Principal, kind unit.Kind, id int64) (bool, error) {
	s, err := Resolve(p)
	if err != nil {
		return false, err
	}
	return s.Contains(kind, id), nil
}
