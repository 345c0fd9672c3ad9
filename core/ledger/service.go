// Package ledger records and verifies the financial transactions of schools and culture categories.
// It is the only writer of transaction rows.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/access"
	"github.com/trezcool/masomo-audit/core/event"
	"github.com/trezcool/masomo-audit/core/principal"
)

var (
	// errors
	ErrAlreadyVerified  = core.NewConflictError("transaction already verified")
	ErrVerifiedDelete   = core.NewConflictError("verified transactions cannot be deleted")
	ErrNotVerified      = core.NewConflictError("only verified transactions can be reversed, delete it instead")
	ErrAlreadyReversed  = core.NewConflictError("transaction already reversed")
	ErrReverseReversal  = core.NewConflictError("a reversal cannot be reversed")
	ErrDuplicateKey     = errors.New("duplicate idempotency key")
	ErrKeyReused        = core.NewConflictError("idempotency key already used for a different transaction")
	ErrReservedKey      = core.NewValidationError(nil, core.FieldError{Field: "idempotency_key", Error: "idempotency key prefix is reserved"})
	ErrFeePaymentClosed = core.NewValidationError(nil, core.FieldError{Field: "unit_id", Error: "fee payment is disabled for this unit"})
	ErrPaymentMethod    = core.NewValidationError(nil, core.FieldError{Field: "method", Error: "payment method not accepted by this unit"})

	NowFunc = time.Now
)

// gateway references live in their own idempotency namespace so that client keys never shadow a payment.
const gatewayKeyPrefix = "gateway:"

func now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

func notFound(id string) error {
	return core.NewNotFoundError("transaction", id)
}

type (
	// Repository persists transactions.
	// MarkVerified must only flip unverified rows (compare-and-swap on the verified flag) and returns
	// ErrAlreadyVerified when the row was verified by someone else first.
	// DeleteUnverified returns ErrVerifiedDelete for verified rows.
	// CreateTransaction returns ErrDuplicateKey when the idempotency key or the reversed transaction is taken.
	Repository interface {
		CreateTransaction(ctx context.Context, t Transaction) (Transaction, error)
		GetTransaction(ctx context.Context, id string) (Transaction, error)
		GetByIdempotencyKey(ctx context.Context, domain Domain, unitID int64, key string) (Transaction, error)
		QueryTransactions(ctx context.Context, filter QueryFilter) ([]Transaction, error)
		MarkVerified(ctx context.Context, id, verifiedBy string, verifiedAt time.Time) (Transaction, error)
		DeleteUnverified(ctx context.Context, id string) error
	}

	// Classifier tells apart the income and expense-like transaction types of each domain.
	Classifier interface {
		Valid(domain Domain, typ string) bool
		IsIncome(domain Domain, typ string) bool
	}

	Service struct {
		repo       Repository
		gate       *access.Gate
		classes    Classifier
		events     event.Publisher
		validate   *validator.Validate
		translator ut.Translator
		conf       *core.Config
		log        core.Logger
	}
)

func NewService(
	repo Repository,
	gate *access.Gate,
	classes Classifier,
	events event.Publisher,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
	log core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		gate:       gate,
		classes:    classes,
		events:     events,
		validate:   validate,
		translator: translator,
		conf:       conf,
		log:        log,
	}
}

func (svc *Service) validateStruct(s interface{}) error {
	if err := svc.validate.Struct(s); err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	return nil
}

// Record stores a new unverified transaction for the unit.
// When the idempotency key was already used in the same domain & unit, the original transaction is
// returned and `created` is false.
func (svc *Service) Record(ctx context.Context, p principal.Principal, nt NewTransaction) (tx Transaction, created bool, err error) {
	if !nt.Domain.Valid() {
		return Transaction{}, false, core.NewValidationError(nil, core.FieldError{Field: "domain", Error: "unknown domain"})
	}
	if _, err = svc.gate.Allow(ctx, p, nt.Domain.UnitKind(), nt.UnitID, access.ActionWrite); err != nil {
		return Transaction{}, false, err
	}
	if strings.HasPrefix(strings.ToLower(core.CleanString(nt.IdempotencyKey)), gatewayKeyPrefix) {
		return Transaction{}, false, ErrReservedKey
	}
	return svc.record(ctx, p, nt, event.TransactionRecorded)
}

// replay returns the transaction already recorded under the request's idempotency key.
// A key reused by another recorder or for another type or amount is a conflict.
func (svc *Service) replay(ctx context.Context, p principal.Principal, nt NewTransaction) (Transaction, error) {
	tx, err := svc.repo.GetByIdempotencyKey(ctx, nt.Domain, nt.UnitID, nt.IdempotencyKey)
	if err != nil {
		return Transaction{}, err
	}
	if tx.RecordedBy != p.ID || tx.Type != nt.Type || !tx.Amount.Equal(*nt.Amount) {
		return Transaction{}, ErrKeyReused
	}
	return tx, nil
}

func (svc *Service) record(ctx context.Context, p principal.Principal, nt NewTransaction, evType event.Type) (Transaction, bool, error) {
	nt.clean()
	if err := svc.validateStruct(nt); err != nil {
		return Transaction{}, false, err
	}

	if nt.IdempotencyKey != "" {
		tx, err := svc.replay(ctx, p, nt)
		if err == nil {
			return tx, false, nil
		} else if core.IsConflict(err) {
			return Transaction{}, false, err
		} else if !core.IsNotFound(err) {
			return Transaction{}, false, errors.Wrap(err, "looking up idempotency key")
		}
	}

	currency := nt.Currency
	if currency == "" {
		currency = svc.conf.DefaultCurrency
	}
	tx := Transaction{
		ID:               uuid.NewString(),
		Domain:           nt.Domain,
		UnitID:           nt.UnitID,
		Type:             nt.Type,
		Amount:           *nt.Amount,
		Currency:         currency,
		Description:      nt.Description,
		CounterpartyName: null.NewString(nt.CounterpartyName, nt.CounterpartyName != ""),
		ReferenceNumber:  null.NewString(nt.ReferenceNumber, nt.ReferenceNumber != ""),
		IdempotencyKey:   null.NewString(nt.IdempotencyKey, nt.IdempotencyKey != ""),
		RecordedBy:       p.ID,
		RecordedAt:       now(),
	}

	tx, err := svc.repo.CreateTransaction(ctx, tx)
	if err != nil {
		if errors.Cause(err) == ErrDuplicateKey && nt.IdempotencyKey != "" {
			// lost the race against a concurrent retry
			if tx, err = svc.replay(ctx, p, nt); err != nil && !core.IsConflict(err) {
				err = errors.Wrap(err, "looking up idempotency key")
			}
			return tx, false, err
		}
		return Transaction{}, false, errors.Wrap(err, "recording transaction")
	}

	if evType == event.PaymentReceived || svc.classes.IsIncome(tx.Domain, tx.Type) {
		svc.publish(ctx, evType, tx)
	}
	return tx, true, nil
}

// publish emits a ledger event. The transaction is already committed, failures are only logged.
func (svc *Service) publish(ctx context.Context, evType event.Type, tx Transaction) {
	amount := tx.Amount
	ev := event.Event{
		ID:                uuid.NewString(),
		Type:              evType,
		Domain:            string(tx.Domain),
		UnitID:            tx.UnitID,
		Amount:            &amount,
		Currency:          tx.Currency,
		Subject:           tx.CounterpartyName.String,
		RelatedEntityType: "transaction",
		RelatedEntityID:   tx.ID,
		ActorID:           tx.RecordedBy,
		OccurredAt:        tx.RecordedAt,
	}
	if err := svc.events.Publish(ctx, ev); err != nil {
		svc.log.Error(fmt.Sprintf("publishing %s event: %v", evType, err), err, map[string]interface{}{"transaction": tx.ID})
	}
}

// getForAction fetches the transaction and checks that `p` may perform `action` on its unit.
func (svc *Service) getForAction(ctx context.Context, p principal.Principal, id string, action access.Action) (Transaction, error) {
	if _, err := access.Resolve(p); err != nil {
		return Transaction{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Transaction{}, notFound(id)
	}
	tx, err := svc.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if _, err = svc.gate.Allow(ctx, p, tx.Domain.UnitKind(), tx.UnitID, action); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (svc *Service) Get(ctx context.Context, p principal.Principal, id string) (Transaction, error) {
	return svc.getForAction(ctx, p, id, access.ActionRead)
}

// Verify marks the transaction verified. Exactly one of concurrent calls succeeds, the others get
// ErrAlreadyVerified.
func (svc *Service) Verify(ctx context.Context, p principal.Principal, id string) (Transaction, error) {
	tx, err := svc.getForAction(ctx, p, id, access.ActionVerify)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Verified {
		return Transaction{}, ErrAlreadyVerified
	}
	return svc.repo.MarkVerified(ctx, id, p.ID, now())
}

// Delete removes an unverified transaction. Verified transactions are audit evidence and stay.
func (svc *Service) Delete(ctx context.Context, p principal.Principal, id string) error {
	tx, err := svc.getForAction(ctx, p, id, access.ActionWrite)
	if err != nil {
		return err
	}
	if tx.Verified {
		return ErrVerifiedDelete
	}
	return svc.repo.DeleteUnverified(ctx, id)
}

// Reverse records a compensating transaction for a verified transaction.
// The reversal is unverified and goes through the usual verification workflow.
func (svc *Service) Reverse(ctx context.Context, p principal.Principal, id string, rev Reversal) (Transaction, error) {
	rev.Reason = core.CleanString(rev.Reason)
	if err := svc.validateStruct(rev); err != nil {
		return Transaction{}, err
	}

	orig, err := svc.getForAction(ctx, p, id, access.ActionWrite)
	if err != nil {
		return Transaction{}, err
	}
	switch {
	case orig.IsReversal():
		return Transaction{}, ErrReverseReversal
	case !orig.Verified:
		return Transaction{}, ErrNotVerified
	}

	tx := Transaction{
		ID:               uuid.NewString(),
		Domain:           orig.Domain,
		UnitID:           orig.UnitID,
		Type:             orig.Type,
		Amount:           orig.Amount,
		Currency:         orig.Currency,
		Description:      fmt.Sprintf("Reversal of %s: %s", orig.ID, rev.Reason),
		CounterpartyName: orig.CounterpartyName,
		ReferenceNumber:  orig.ReferenceNumber,
		ReversalOf:       null.StringFrom(orig.ID),
		RecordedBy:       p.ID,
		RecordedAt:       now(),
	}
	if tx, err = svc.repo.CreateTransaction(ctx, tx); err != nil {
		if errors.Cause(err) == ErrDuplicateKey {
			return Transaction{}, ErrAlreadyReversed
		}
		return Transaction{}, errors.Wrap(err, "reversing transaction")
	}
	svc.publish(ctx, event.TransactionReversed, tx)
	return tx, nil
}

// List returns a fresh snapshot of the unit's transactions matching the filter.
func (svc *Service) List(ctx context.Context, p principal.Principal, filter QueryFilter) ([]Transaction, error) {
	if !filter.Domain.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "domain", Error: "unknown domain"})
	}
	if _, err := svc.gate.Allow(ctx, p, filter.Domain.UnitKind(), filter.UnitID, access.ActionRead); err != nil {
		return nil, err
	}
	filter.Search = core.CleanString(filter.Search)
	if len(filter.Ordering) == 0 {
		filter.Ordering = DefaultOrdering
	}
	txs, err := svc.repo.QueryTransactions(ctx, filter)
	return txs, errors.Wrap(err, "querying transactions")
}

// RecordPayment ingests a settled gateway payment as a school fee revenue recorded by the system principal.
// The gateway reference doubles as idempotency key, so redelivered webhooks are harmless.
// Gateway keys are prefixed so that no client key can collide with them.
func (svc *Service) RecordPayment(ctx context.Context, pay Payment) (Transaction, bool, error) {
	pay.clean()
	if err := svc.validateStruct(pay); err != nil {
		return Transaction{}, false, err
	}

	u, err := svc.gate.Allow(ctx, principal.System, DomainSchoolFee.UnitKind(), pay.UnitID, access.ActionWrite)
	if err != nil {
		return Transaction{}, false, err
	}
	if !u.FeePaymentEnabled {
		return Transaction{}, false, ErrFeePaymentClosed
	}
	if !u.AcceptsPaymentMethod(pay.Method) {
		return Transaction{}, false, ErrPaymentMethod
	}

	nt := NewTransaction{
		Domain:           DomainSchoolFee,
		UnitID:           pay.UnitID,
		IdempotencyKey:   gatewayKeyPrefix + pay.GatewayReference,
		Type:             TypeRevenue,
		Amount:           pay.Amount,
		Currency:         pay.Currency,
		Description:      fmt.Sprintf("Fee payment via %s", pay.Method),
		CounterpartyName: pay.PayerName,
		ReferenceNumber:  pay.GatewayReference,
	}
	return svc.record(ctx, principal.System, nt, event.PaymentReceived)
}
