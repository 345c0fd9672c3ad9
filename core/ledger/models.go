package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/unit"
)

type Domain string

// Domains
const (
	DomainCultureWing Domain = "culture_wing"
	DomainPublication Domain = "publication"
	DomainSchoolFee   Domain = "school_fee"
)

var AllDomains = []Domain{DomainCultureWing, DomainPublication, DomainSchoolFee}

// TypeRevenue is the school fee type settled gateway payments are recorded as.
const TypeRevenue = "revenue"

func (d Domain) Valid() bool {
	for _, dom := range AllDomains {
		if d == dom {
			return true
		}
	}
	return false
}

// UnitKind returns the kind of unit the domain's transactions are scoped to.
func (d Domain) UnitKind() unit.Kind {
	if d == DomainSchoolFee {
		return unit.KindSchool
	}
	return unit.KindCulture
}

// ParseDomain validates a domain coming from a request path or a CLI flag.
func ParseDomain(s string) (Domain, error) {
	d := Domain(core.CleanString(s, true /* lower */))
	if !d.Valid() {
		return "", core.NewValidationError(nil, core.FieldError{Field: "domain", Error: "unknown domain"})
	}
	return d, nil
}

type Transaction struct {
	ID               string          `json:"id"`
	Domain           Domain          `json:"domain"`
	UnitID           int64           `json:"unit_id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description"`
	CounterpartyName null.String     `json:"counterparty_name"`
	ReferenceNumber  null.String     `json:"reference_number"`
	IdempotencyKey   null.String     `json:"-"`
	ReversalOf       null.String     `json:"reversal_of"`
	RecordedBy       string          `json:"recorded_by"`
	RecordedAt       time.Time       `json:"recorded_at"` // UTC
	Verified         bool            `json:"verified"`
	VerifiedBy       null.String     `json:"verified_by"`
	VerifiedAt       null.Time       `json:"verified_at"` // UTC
}

// IsReversal reports whether t compensates another transaction.
func (t Transaction) IsReversal() bool {
	return t.ReversalOf.Valid
}

// NewTransaction contains information needed to record a transaction.
// Domain, UnitID and IdempotencyKey come from the request path & headers.
type NewTransaction struct {
	Domain           Domain           `json:"-"`
	UnitID           int64            `json:"-"`
	IdempotencyKey   string           `json:"-" validate:"max=255"`
	Type             string           `json:"type" validate:"required"`
	Amount           *decimal.Decimal `json:"amount" validate:"required"`
	Currency         string           `json:"currency" validate:"omitempty,len=3,alpha"`
	Description      string           `json:"description" validate:"max=1000"`
	CounterpartyName string           `json:"counterparty_name" validate:"max=255"`
	ReferenceNumber  string           `json:"reference_number" validate:"max=255"`
}

func (nt *NewTransaction) clean() {
	nt.Type = core.CleanString(nt.Type, true /* lower */)
	nt.Currency = strings.ToUpper(core.CleanString(nt.Currency))
	nt.Description = core.CleanString(nt.Description)
	nt.CounterpartyName = core.CleanString(nt.CounterpartyName)
	nt.ReferenceNumber = core.CleanString(nt.ReferenceNumber)
	nt.IdempotencyKey = core.CleanString(nt.IdempotencyKey)
}

// Payment is a settled payment delivered by the payment gateway webhook.
type Payment struct {
	UnitID           int64            `json:"unit_id" validate:"required,gt=0"`
	Amount           *decimal.Decimal `json:"amount" validate:"required"`
	Currency         string           `json:"currency" validate:"omitempty,len=3,alpha"`
	PayerName        string           `json:"payer_name" validate:"required,max=255"`
	Method           string           `json:"method" validate:"required"`
	GatewayReference string           `json:"gateway_reference" validate:"required,max=240"`
}

func (pay *Payment) clean() {
	pay.Currency = strings.ToUpper(core.CleanString(pay.Currency))
	pay.PayerName = core.CleanString(pay.PayerName)
	pay.Method = core.CleanString(pay.Method, true /* lower */)
	pay.GatewayReference = core.CleanString(pay.GatewayReference)
}

// Reversal contains the reason given for reversing a verified transaction.
type Reversal struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// QueryFilter narrows a ledger listing; Domain and UnitID are mandatory.
type QueryFilter struct {
	Domain       Domain
	UnitID       int64
	Search       string // case-insensitive match on description, counterparty or reference
	Types        []string
	Verified     *bool
	RecordedFrom time.Time
	RecordedTo   time.Time
	Ordering     []core.DBOrdering
}

// OrderingFields are the fields a listing may be ordered by.
var OrderingFields = []string{"recorded_at", "amount", "type", "verified_at"}

// DefaultOrdering lists newest transactions first.
var DefaultOrdering = []core.DBOrdering{{Field: "recorded_at", Ascending: false}}
