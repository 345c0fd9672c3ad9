package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/event"
	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/notification"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
	"github.com/trezcool/masomo-audit/tests"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type fixture struct {
	env     *testutil.Env
	super   principal.Principal
	school  principal.Principal
	culture principal.Principal
}

func setup(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	testutil.CreateUnit(t, env.Units, unit.KindSchool, 7, true, "cash", "mobile_money")
	testutil.CreateUnit(t, env.Units, unit.KindSchool, 9, false)
	testutil.CreateUnit(t, env.Units, unit.KindCulture, 3, false)
	return fixture{
		env:   env,
		super: testutil.CreatePrincipal(t, env.Principals, "super", principal.RoleSuperAdmin, true, principal.Grants{}),
		school: testutil.CreatePrincipal(
			t, env.Principals, "school", principal.RoleSchoolAdmin, true, principal.Grants{SchoolIDs: []int64{7}},
		),
		culture: testutil.CreatePrincipal(
			t, env.Principals, "culture", principal.RoleCultureAdmin, true, principal.Grants{CultureIDs: []int64{3}},
		),
	}
}

func (f fixture) record(t *testing.T, p principal.Principal, domain ledger.Domain, unitID int64, typ, amount string) ledger.Transaction {
	t.Helper()
	tx, created, err := f.env.Ledger.Record(context.Background(), p, ledger.NewTransaction{
		Domain: domain, UnitID: unitID, Type: typ, Amount: dec(amount), Description: typ + " " + amount,
	})
	require.NoError(t, err)
	require.True(t, created)
	return tx
}

func TestService_Record(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	// a school admin records on its own school
	tx, created, err := f.env.Ledger.Record(ctx, f.school, ledger.NewTransaction{
		Domain:           ledger.DomainSchoolFee,
		UnitID:           7,
		Type:             "revenue",
		Amount:           dec("500"),
		Description:      " Term 1 fees ",
		CounterpartyName: "Parent A",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, tx.Verified)
	assert.False(t, tx.VerifiedBy.Valid)
	assert.False(t, tx.VerifiedAt.Valid)
	assert.Equal(t, f.school.ID, tx.RecordedBy)
	assert.Equal(t, "INR", tx.Currency)
	assert.Equal(t, "Term 1 fees", tx.Description)
	assert.Equal(t, "Parent A", tx.CounterpartyName.String)
	assert.False(t, tx.ReferenceNumber.Valid)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(500)))

	// ...but not on another one
	_, _, err = f.env.Ledger.Record(ctx, f.school, ledger.NewTransaction{
		Domain: ledger.DomainSchoolFee, UnitID: 9, Type: "revenue", Amount: dec("500"),
	})
	assert.Equal(t, core.ErrForbidden, err)

	tests := []struct {
		name      string
		nt        ledger.NewTransaction
		wantField string
	}{
		{
			name:      "negative amount",
			nt:        ledger.NewTransaction{Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "revenue", Amount: dec("-1")},
			wantField: "amount",
		},
		{
			name:      "more than 2 decimal places",
			nt:        ledger.NewTransaction{Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "revenue", Amount: dec("1.005")},
			wantField: "amount",
		},
		{
			name:      "amount too large",
			nt:        ledger.NewTransaction{Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "revenue", Amount: dec("1000000000000")},
			wantField: "amount",
		},
		{
			name:      "missing amount",
			nt:        ledger.NewTransaction{Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "revenue"},
			wantField: "amount",
		},
		{
			name:      "type of another domain",
			nt:        ledger.NewTransaction{Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "program_fee", Amount: dec("1")},
			wantField: "type",
		},
		{
			name:      "missing type",
			nt:        ledger.NewTransaction{Domain: ledger.DomainSchoolFee, UnitID: 7, Amount: dec("1")},
			wantField: "type",
		},
		{
			name:      "bad currency",
			nt:        ledger.NewTransaction{Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "revenue", Amount: dec("1"), Currency: "RUPEES"},
			wantField: "currency",
		},
		{
			name:      "unknown domain",
			nt:        ledger.NewTransaction{Domain: "library", UnitID: 7, Type: "revenue", Amount: dec("1")},
			wantField: "domain",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.env.Ledger.Record(ctx, f.super, tt.nt)
			require.True(t, core.IsValidation(err), "got %v", err)
			vErr := err.(*core.ValidationError)
			require.NotEmpty(t, vErr.Fields)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}

	// zero is a valid amount, and so are the largest and trailing zero amounts the store keeps exactly
	f.record(t, f.super, ledger.DomainSchoolFee, 7, "expense", "0")
	f.record(t, f.super, ledger.DomainSchoolFee, 7, "revenue", "999999999999.99")
	f.record(t, f.super, ledger.DomainSchoolFee, 7, "revenue", "12.500")

	// unknown unit
	_, _, err = f.env.Ledger.Record(ctx, f.super, ledger.NewTransaction{
		Domain: ledger.DomainCultureWing, UnitID: 404, Type: "program_fee", Amount: dec("1"),
	})
	assert.True(t, core.IsNotFound(err))
}

func TestService_Record_notifiesIncomeOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.record(t, f.culture, ledger.DomainCultureWing, 3, "instructor_payment", "300")
	count, err := f.env.Dispatcher.UnreadCount(ctx, f.super)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	tx := f.record(t, f.culture, ledger.DomainCultureWing, 3, "program_fee", "60000")
	count, err = f.env.Dispatcher.UnreadCount(ctx, f.super)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ns, err := f.env.Dispatcher.ListFor(ctx, f.school, notification.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, notification.PriorityUrgent, ns[0].Priority)
	assert.Equal(t, "transaction", ns[0].RelatedEntityType.String)
	assert.Equal(t, tx.ID, ns[0].RelatedEntityID.String)
}

func TestService_Record_idempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	nt := ledger.NewTransaction{
		Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "revenue", Amount: dec("500"), IdempotencyKey: "req-1",
	}
	first, created, err := f.env.Ledger.Record(ctx, f.school, nt)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.env.Ledger.Record(ctx, f.school, nt)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	// the key is scoped to the domain & unit
	other := nt
	other.UnitID = 9
	third, created, err := f.env.Ledger.Record(ctx, f.super, other)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)

	// a reused key must describe the same transaction
	tests := []struct {
		name string
		p    principal.Principal
		mod  func(nt *ledger.NewTransaction)
	}{
		{"other recorder", f.super, func(nt *ledger.NewTransaction) {}},
		{"other type", f.school, func(nt *ledger.NewTransaction) { nt.Type = "refund" }},
		{"other amount", f.school, func(nt *ledger.NewTransaction) { nt.Amount = dec("501") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reused := nt
			tt.mod(&reused)
			_, _, err := f.env.Ledger.Record(ctx, tt.p, reused)
			assert.Equal(t, ledger.ErrKeyReused, err)
			assert.True(t, core.IsConflict(err))
		})
	}

	// gateway keys are reserved
	reserved := nt
	reserved.IdempotencyKey = " Gateway:gw-1"
	_, _, err = f.env.Ledger.Record(ctx, f.school, reserved)
	assert.Equal(t, ledger.ErrReservedKey, err)

	txs, err := f.env.Ledger.List(ctx, f.super, ledger.QueryFilter{Domain: ledger.DomainSchoolFee, UnitID: 7})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestService_RecordPayment_clientKeyCollision(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	// a client key equal to a future gateway reference
	refund, created, err := f.env.Ledger.Record(ctx, f.school, ledger.NewTransaction{
		Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "refund", Amount: dec("1"), IdempotencyKey: "gw-555",
	})
	require.NoError(t, err)
	require.True(t, created)

	tx, created, err := f.env.Ledger.RecordPayment(ctx, ledger.Payment{
		UnitID: 7, Amount: dec("30000"), PayerName: "Parent C", Method: "cash", GatewayReference: "gw-555",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, refund.ID, tx.ID)
	assert.Equal(t, "revenue", tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(30000)))

	txs, err := f.env.Ledger.List(ctx, f.super, ledger.QueryFilter{Domain: ledger.DomainSchoolFee, UnitID: 7})
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	ns, err := f.env.Dispatcher.ListFor(ctx, f.super, notification.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, event.PaymentReceived, ns[0].Type)
	assert.Equal(t, tx.ID, ns[0].RelatedEntityID.String)

	// the client key still replays the client's transaction
	again, created, err := f.env.Ledger.Record(ctx, f.school, ledger.NewTransaction{
		Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "refund", Amount: dec("1"), IdempotencyKey: "gw-555",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, refund.ID, again.ID)
}

func TestService_Verify(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	verifiedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ledger.NowFunc = func() time.Time { return verifiedAt }
	defer func() { ledger.NowFunc = time.Now }()

	tx := f.record(t, f.school, ledger.DomainSchoolFee, 7, "revenue", "500")

	// recorder may verify its own transaction
	got, err := f.env.Ledger.Verify(ctx, f.school, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, f.school.ID, got.VerifiedBy.String)
	assert.True(t, got.VerifiedAt.Time.Equal(verifiedAt))

	// second verification is a conflict and changes nothing
	ledger.NowFunc = func() time.Time { return verifiedAt.Add(time.Hour) }
	_, err = f.env.Ledger.Verify(ctx, f.super, tx.ID)
	assert.Equal(t, ledger.ErrAlreadyVerified, err)
	assert.True(t, core.IsConflict(err))

	got, err = f.env.Ledger.Get(ctx, f.super, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.VerifiedAt.Time.Equal(verifiedAt))
	assert.Equal(t, f.school.ID, got.VerifiedBy.String)

	_, err = f.env.Ledger.Verify(ctx, f.super, "d9a8e2a5-5c1e-4c4f-9d59-6f1a4e1f6b7c")
	assert.True(t, core.IsNotFound(err))
	_, err = f.env.Ledger.Verify(ctx, f.super, "not-a-uuid")
	assert.True(t, core.IsNotFound(err))

	other := f.record(t, f.super, ledger.DomainSchoolFee, 9, "revenue", "10")
	_, err = f.env.Ledger.Verify(ctx, f.school, other.ID)
	assert.Equal(t, core.ErrForbidden, err)
}

func TestService_Verify_concurrent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tx := f.record(t, f.super, ledger.DomainCultureWing, 3, "program_fee", "1200")

	const n = 20
	var (
		mu        sync.Mutex
		successes int
		conflicts int
		g         errgroup.Group
	)
	for i := 0; i < n; i++ {
		verifier := f.super
		if i%2 == 0 {
			verifier = f.culture
		}
		g.Go(func() error {
			_, err := f.env.Ledger.Verify(ctx, verifier, tx.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case core.IsConflict(err):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	unverified := f.record(t, f.school, ledger.DomainSchoolFee, 7, "expense", "50")
	verified := f.record(t, f.school, ledger.DomainSchoolFee, 7, "revenue", "500")
	_, err := f.env.Ledger.Verify(ctx, f.super, verified.ID)
	require.NoError(t, err)

	require.NoError(t, f.env.Ledger.Delete(ctx, f.school, unverified.ID))
	_, err = f.env.Ledger.Get(ctx, f.school, unverified.ID)
	assert.True(t, core.IsNotFound(err))

	err = f.env.Ledger.Delete(ctx, f.super, verified.ID)
	assert.Equal(t, ledger.ErrVerifiedDelete, err)
	assert.True(t, core.IsConflict(err))

	err = f.env.Ledger.Delete(ctx, f.culture, verified.ID)
	assert.Equal(t, core.ErrForbidden, err)

	got, err := f.env.Ledger.Get(ctx, f.school, verified.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func TestService_Reverse(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	rev := ledger.Reversal{Reason: "duplicate entry"}

	tx := f.record(t, f.culture, ledger.DomainCultureWing, 3, "program_fee", "1200")
	_, err := f.env.Ledger.Reverse(ctx, f.culture, tx.ID, rev)
	assert.Equal(t, ledger.ErrNotVerified, err)

	_, err = f.env.Ledger.Verify(ctx, f.super, tx.ID)
	require.NoError(t, err)

	_, err = f.env.Ledger.Reverse(ctx, f.culture, tx.ID, ledger.Reversal{})
	assert.True(t, core.IsValidation(err))

	reversal, err := f.env.Ledger.Reverse(ctx, f.culture, tx.ID, rev)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, reversal.ReversalOf.String)
	assert.Equal(t, tx.Type, reversal.Type)
	assert.True(t, tx.Amount.Equal(reversal.Amount))
	assert.False(t, reversal.Verified)
	assert.Contains(t, reversal.Description, "duplicate entry")

	_, err = f.env.Ledger.Reverse(ctx, f.culture, tx.ID, rev)
	assert.Equal(t, ledger.ErrAlreadyReversed, err)

	_, err = f.env.Ledger.Verify(ctx, f.super, reversal.ID)
	require.NoError(t, err)
	_, err = f.env.Ledger.Reverse(ctx, f.super, reversal.ID, rev)
	assert.Equal(t, ledger.ErrReverseReversal, err)

	// the original row is untouched
	got, err := f.env.Ledger.Get(ctx, f.super, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Amount.String(), got.Amount.String())
	assert.True(t, got.Verified)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	var i int
	ledger.NowFunc = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Hour)
	}
	defer func() { ledger.NowFunc = time.Now }()

	record := func(typ, amount, desc, counterparty, ref string) ledger.Transaction {
		tx, _, err := f.env.Ledger.Record(ctx, f.culture, ledger.NewTransaction{
			Domain: ledger.DomainCultureWing, UnitID: 3, Type: typ, Amount: dec(amount),
			Description: desc, CounterpartyName: counterparty, ReferenceNumber: ref,
		})
		require.NoError(t, err)
		return tx
	}
	t1 := record("program_fee", "1200", "Dance program", "Kabila Family", "")
	t2 := record("instructor_payment", "300", "May salary", "Mr Tshisekedi", "CHQ-001")
	t3 := record("workshop_fee", "80", "Pottery workshop", "", "WS-42")
	_, err := f.env.Ledger.Verify(ctx, f.super, t2.ID)
	require.NoError(t, err)

	// other units & domains never leak in
	f.record(t, f.super, ledger.DomainPublication, 3, "revenue", "1")
	f.record(t, f.super, ledger.DomainSchoolFee, 7, "revenue", "1")

	ids := func(txs []ledger.Transaction) []string {
		res := make([]string, 0, len(txs))
		for _, tx := range txs {
			res = append(res, tx.ID)
		}
		return res
	}
	bPtr := func(b bool) *bool { return &b }
	filter := func(mod func(*ledger.QueryFilter)) ledger.QueryFilter {
		flt := ledger.QueryFilter{Domain: ledger.DomainCultureWing, UnitID: 3}
		if mod != nil {
			mod(&flt)
		}
		return flt
	}

	tests := []struct {
		name   string
		filter ledger.QueryFilter
		want   []string
	}{
		{"newest first by default", filter(nil), []string{t3.ID, t2.ID, t1.ID}},
		{"search description", filter(func(q *ledger.QueryFilter) { q.Search = "DANCE" }), []string{t1.ID}},
		{"search counterparty", filter(func(q *ledger.QueryFilter) { q.Search = "tshi" }), []string{t2.ID}},
		{"search reference", filter(func(q *ledger.QueryFilter) { q.Search = "ws-4" }), []string{t3.ID}},
		{"search unknown", filter(func(q *ledger.QueryFilter) { q.Search = "lol" }), []string{}},
		{
			"types", filter(func(q *ledger.QueryFilter) { q.Types = []string{"program_fee", "workshop_fee"} }),
			[]string{t3.ID, t1.ID},
		},
		{"verified", filter(func(q *ledger.QueryFilter) { q.Verified = bPtr(true) }), []string{t2.ID}},
		{"unverified", filter(func(q *ledger.QueryFilter) { q.Verified = bPtr(false) }), []string{t3.ID, t1.ID}},
		{
			"recorded range", filter(func(q *ledger.QueryFilter) {
				q.RecordedFrom = t2.RecordedAt
				q.RecordedTo = t2.RecordedAt
			}),
			[]string{t2.ID},
		},
		{
			"ordering by amount", filter(func(q *ledger.QueryFilter) { q.Ordering = core.ParseOrdering("amount", ledger.OrderingFields...) }),
			[]string{t3.ID, t2.ID, t1.ID},
		},
		{
			"ordering by -amount", filter(func(q *ledger.QueryFilter) { q.Ordering = core.ParseOrdering("-amount", ledger.OrderingFields...) }),
			[]string{t1.ID, t2.ID, t3.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := f.env.Ledger.List(ctx, f.culture, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(txs))
		})
	}

	_, err = f.env.Ledger.List(ctx, f.school, filter(nil))
	assert.Equal(t, core.ErrForbidden, err)
}

func TestService_RecordPayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	pay := ledger.Payment{
		UnitID: 7, Amount: dec("30000"), PayerName: "Parent B", Method: "Mobile_Money", GatewayReference: "gw-123",
	}
	tx, created, err := f.env.Ledger.RecordPayment(ctx, pay)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ledger.DomainSchoolFee, tx.Domain)
	assert.Equal(t, "revenue", tx.Type)
	assert.Equal(t, principal.System.ID, tx.RecordedBy)
	assert.Equal(t, "Parent B", tx.CounterpartyName.String)
	assert.Equal(t, "gw-123", tx.ReferenceNumber.String)
	assert.False(t, tx.Verified)

	// redelivered webhook
	again, created, err := f.env.Ledger.RecordPayment(ctx, pay)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tx.ID, again.ID)

	ns, err := f.env.Dispatcher.ListFor(ctx, f.super, notification.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, event.PaymentReceived, ns[0].Type)
	assert.Equal(t, notification.PriorityUrgent, ns[0].Priority)

	tests := []struct {
		name string
		mod  func(p *ledger.Payment)
		want error
	}{
		{"fee payment disabled", func(p *ledger.Payment) { p.UnitID = 9 }, ledger.ErrFeePaymentClosed},
		{"method not accepted", func(p *ledger.Payment) { p.Method = "card" }, ledger.ErrPaymentMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pay
			p.GatewayReference = "gw-" + tt.name
			tt.mod(&p)
			_, _, err := f.env.Ledger.RecordPayment(ctx, p)
			assert.Equal(t, tt.want, err)
		})
	}

	_, _, err = f.env.Ledger.RecordPayment(ctx, ledger.Payment{UnitID: 7, Amount: dec("1")})
	assert.True(t, core.IsValidation(err))
	_, _, err = f.env.Ledger.RecordPayment(ctx, ledger.Payment{
		UnitID: 404, Amount: dec("1"), PayerName: "x", Method: "cash", GatewayReference: "gw-404",
	})
	assert.True(t, core.IsNotFound(err))
}

func TestService_scopeIsolation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tx := f.record(t, f.super, ledger.DomainSchoolFee, 9, "revenue", "10")

	_, _, err := f.env.Ledger.Record(ctx, f.school, ledger.NewTransaction{
		Domain: ledger.DomainSchoolFee, UnitID: 9, Type: "revenue", Amount: dec("1"),
	})
	assert.Equal(t, core.ErrForbidden, err, "record")
	_, err = f.env.Ledger.List(ctx, f.school, ledger.QueryFilter{Domain: ledger.DomainSchoolFee, UnitID: 9})
	assert.Equal(t, core.ErrForbidden, err, "list")
	_, err = f.env.Ledger.Get(ctx, f.school, tx.ID)
	assert.Equal(t, core.ErrForbidden, err, "get")
	_, err = f.env.Ledger.Verify(ctx, f.school, tx.ID)
	assert.Equal(t, core.ErrForbidden, err, "verify")
	err = f.env.Ledger.Delete(ctx, f.school, tx.ID)
	assert.Equal(t, core.ErrForbidden, err, "delete")
	_, err = f.env.Ledger.Reverse(ctx, f.school, tx.ID, ledger.Reversal{Reason: "x"})
	assert.Equal(t, core.ErrForbidden, err, "reverse")

	// a culture admin granted culture #7 has nothing on school #7
	crossed := testutil.CreatePrincipal(
		t, f.env.Principals, "crossed", principal.RoleCultureAdmin, true, principal.Grants{CultureIDs: []int64{7}},
	)
	_, err = f.env.Ledger.List(ctx, crossed, ledger.QueryFilter{Domain: ledger.DomainSchoolFee, UnitID: 7})
	assert.Equal(t, core.ErrForbidden, err)

	// deactivated principals are unauthenticated
	inactive := f.school
	inactive.IsActive = false
	_, err = f.env.Ledger.List(ctx, inactive, ledger.QueryFilter{Domain: ledger.DomainSchoolFee, UnitID: 7})
	assert.Equal(t, core.ErrUnauthorized, err)
	_, err = f.env.Ledger.Get(ctx, inactive, tx.ID)
	assert.Equal(t, core.ErrUnauthorized, err)
}
