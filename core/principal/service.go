package principal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/unit"
)

var (
	// errors
	ErrEmailExists    = errors.New("a principal with this email already exists")
	ErrUsernameExists = errors.New("a principal with this username already exists")

	NowFunc = time.Now
)

type (
	// Repository persists principals together with their unit grants.
	// Get* methods return a *core.NotFoundError for unknown principals.
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreatePrincipal(ctx context.Context, p Principal) (Principal, error)
		QueryPrincipals(ctx context.Context) ([]Principal, error)
		GetPrincipal(ctx context.Context, filter GetFilter) (Principal, error)
		UpdatePrincipal(ctx context.Context, p Principal) (Principal, error)
		AddGrant(ctx context.Context, principalID string, kind unit.Kind, unitID int64) error
		RemoveGrant(ctx context.Context, principalID string, kind unit.Kind, unitID int64) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, exclIDs ...string) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclIDs...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create validates uniqueness and stores a new active principal with its grants.
func (svc *Service) Create(ctx context.Context, np NewPrincipal) (Principal, error) {
	if err := svc.checkUniqueness(ctx, np.Username, np.Email); err != nil {
		return Principal{}, err
	}

	now := NowFunc().UTC()
	p := Principal{
		ID:        uuid.NewString(),
		Name:      np.Name,
		Username:  np.Username,
		Email:     np.Email,
		Role:      np.Role,
		IsActive:  true,
		Grants:    Grants{SchoolIDs: np.SchoolIDs, CultureIDs: np.CultureIDs},
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Grants.Sort()
	if err := p.SetPassword(np.Password); err != nil {
		return Principal{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreatePrincipal(ctx, p)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Principal, error) {
	return svc.repo.QueryPrincipals(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Principal, error) {
	if id == System.ID {
		return System, nil
	}
	return svc.repo.GetPrincipal(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (Principal, error) {
	return svc.repo.GetPrincipal(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Authenticate returns the active principal matching the credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (Principal, error) {
	p, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if core.IsNotFound(err) {
			return Principal{}, core.ErrUnauthorized
		}
		return Principal{}, err
	}
	if !p.IsActive || p.CheckPassword(pwd) != nil {
		return Principal{}, core.ErrUnauthorized
	}

	p.LastLogin = NowFunc().UTC()
	p.UpdatedAt = p.LastLogin
	return svc.repo.UpdatePrincipal(ctx, p)
}

// Grant gives the principal access to unit `unitID`; the unit kind must match the principal's role.
func (svc *Service) Grant(ctx context.Context, id string, kind unit.Kind, unitID int64) (Principal, error) {
	p, err := svc.GetByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	if scope, ok := p.Role.Scope(); !ok || scope != kind {
		return Principal{}, core.NewValidationError(
			nil, core.FieldError{Field: "scope", Error: scopeText},
		)
	}
	if p.Grants.Has(kind, unitID) {
		return p, nil
	}
	if err = svc.repo.AddGrant(ctx, id, kind, unitID); err != nil {
		return Principal{}, errors.Wrap(err, "adding grant")
	}
	return svc.GetByID(ctx, id)
}

func (svc *Service) Revoke(ctx context.Context, id string, kind unit.Kind, unitID int64) (Principal, error) {
	if _, err := svc.GetByID(ctx, id); err != nil {
		return Principal{}, err
	}
	if err := svc.repo.RemoveGrant(ctx, id, kind, unitID); err != nil {
		return Principal{}, errors.Wrap(err, "removing grant")
	}
	return svc.GetByID(ctx, id)
}

func (svc *Service) SetActive(ctx context.Context, id string, active bool) (Principal, error) {
	p, err := svc.GetByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	p.IsActive = active
	p.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdatePrincipal(ctx, p)
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) (Principal, error) {
	p, err := svc.GetByUsernameOrEmail(ctx, rp.Username)
	if err != nil {
		return Principal{}, err
	}
	if err = p.SetPassword(rp.Password); err != nil {
		return Principal{}, errors.Wrap(err, "hashing password")
	}
	p.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdatePrincipal(ctx, p)
}
