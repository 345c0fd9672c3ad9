package principal

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/unit"
)

type Role string

// Roles
const (
	RoleSuperAdmin   Role = "super_admin"
	RoleSchoolAdmin  Role = "school_admin"
	RoleCultureAdmin Role = "culture_admin"
)

var (
	AllRoles = []Role{RoleSuperAdmin, RoleSchoolAdmin, RoleCultureAdmin}

	Roles = []RoleInfo{
		{Name: "Super Admin", Value: RoleSuperAdmin},
		{Name: "School Admin", Value: RoleSchoolAdmin},
		{Name: "Culture Admin", Value: RoleCultureAdmin},
	}

	// System records the already-settled payments delivered by the payment gateway.
	System = Principal{
		ID:       "00000000-0000-0000-0000-000000000001",
		Name:     "Payment Gateway",
		Username: "system",
		Role:     RoleSuperAdmin,
		IsActive: true,
	}
)

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Scope returns the unit kind a role is granted on; super admins have none as they own every unit.
func (r Role) Scope() (unit.Kind, bool) {
	switch r {
	case RoleSchoolAdmin:
		return unit.KindSchool, true
	case RoleCultureAdmin:
		return unit.KindCulture, true
	}
	return "", false
}

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

// Grants are the explicit unit ids a principal may act on.
type Grants struct {
	SchoolIDs  []int64 `json:"school_ids"`
	CultureIDs []int64 `json:"culture_ids"`
}

// Has reports whether unit `id` of kind `kind` is granted.
func (g Grants) Has(kind unit.Kind, id int64) bool {
	ids := g.SchoolIDs
	if kind == unit.KindCulture {
		ids = g.CultureIDs
	}
	for _, gid := range ids {
		if gid == id {
			return true
		}
	}
	return false
}

func (g *Grants) Sort() {
	sort.Slice(g.SchoolIDs, func(i, j int) bool { return g.SchoolIDs[i] < g.SchoolIDs[j] })
	sort.Slice(g.CultureIDs, func(i, j int) bool { return g.CultureIDs[i] < g.CultureIDs[j] })
}

type Principal struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	Grants       Grants    `json:"grants"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (p *Principal) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	return nil
}

func (p *Principal) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(pwd))
}

func (p Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}

// NewPrincipal contains information needed to create a new Principal.
type NewPrincipal struct {
	Name            string  `json:"name" validate:"required"`
	Username        string  `json:"username" validate:"required,min=4,alphanum_"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Role            Role    `json:"role" validate:"required,adminrole"`
	Password        string  `json:"password" validate:"required"`
	PasswordConfirm string  `json:"password_confirm" validate:"required,eqfield=Password"`
	SchoolIDs       []int64 `json:"school_ids" validate:"omitempty,dive,gt=0"`
	CultureIDs      []int64 `json:"culture_ids" validate:"omitempty,dive,gt=0"`
}

func (np *NewPrincipal) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Username = core.CleanString(np.Username, true /* lower */)
	np.Email = core.CleanString(np.Email, true /* lower */)
	return validate.Struct(np)
}

type ResetPassword struct {
	Username        string `json:"username" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.Username = core.CleanString(rp.Username, true /* lower */)
	return validate.Struct(rp)
}

// GetFilter selects a single principal; the first non-empty field wins.
type GetFilter struct {
	ID              string
	UsernameOrEmail string
}
