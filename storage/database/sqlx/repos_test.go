package sqlxrepos_test

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

func TestPrincipalRepository(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewSQLEnv(t)

	p := testutil.CreatePrincipal(
		t, env.Principals, "school", principal.RoleSchoolAdmin, true, principal.Grants{SchoolIDs: []int64{9, 7}},
	)
	assert.Equal(t, []int64{7, 9}, p.Grants.SchoolIDs)
	assert.Empty(t, p.Grants.CultureIDs)
	assert.NoError(t, p.CheckPassword(testutil.Password))
	assert.True(t, p.LastLogin.IsZero())

	err := env.Principals.CheckUsernameUniqueness(ctx, "school", "other@test.cd")
	assert.Equal(t, principal.ErrUsernameExists, err)
	err = env.Principals.CheckUsernameUniqueness(ctx, "other", "school@test.cd")
	assert.Equal(t, principal.ErrEmailExists, err)
	assert.NoError(t, env.Principals.CheckUsernameUniqueness(ctx, "school", "school@test.cd", p.ID))

	got, err := env.PrincipalSvc.Authenticate(ctx, "school@test.cd", testutil.Password)
	require.NoError(t, err)
	assert.False(t, got.LastLogin.IsZero())

	_, err = env.PrincipalSvc.Grant(ctx, p.ID, unit.KindSchool, 3)
	require.NoError(t, err)
	got, err = env.PrincipalSvc.Revoke(ctx, p.ID, unit.KindSchool, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, got.Grants.SchoolIDs)

	all, err := env.PrincipalSvc.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []int64{3, 7}, all[0].Grants.SchoolIDs)

	_, err = env.PrincipalSvc.GetByID(ctx, "ghost")
	assert.True(t, core.IsNotFound(err))
}

func TestUnitCatalog(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewSQLEnv(t)

	testutil.CreateUnit(t, env.Units, unit.KindSchool, 7, true, "Cash", " mobile_money ")
	testutil.CreateUnit(t, env.Units, unit.KindCulture, 7, false)

	u, err := env.Units.GetUnit(ctx, unit.KindSchool, 7)
	require.NoError(t, err)
	assert.True(t, u.FeePaymentEnabled)
	assert.Equal(t, []string{"cash", "mobile_money"}, u.PaymentMethods)
	assert.True(t, u.AcceptsPaymentMethod("MOBILE_MONEY"))

	// same id, other kind
	u, err = env.Units.GetUnit(ctx, unit.KindCulture, 7)
	require.NoError(t, err)
	assert.False(t, u.FeePaymentEnabled)
	assert.Empty(t, u.PaymentMethods)

	// upsert
	u.Name = "Drama club"
	_, err = env.Units.SaveUnit(ctx, u)
	require.NoError(t, err)
	us, err := env.Units.QueryUnits(ctx, unit.KindCulture)
	require.NoError(t, err)
	require.Len(t, us, 1)
	assert.Equal(t, "Drama club", us[0].Name)

	_, err = env.Units.GetUnit(ctx, unit.KindSchool, 8)
	assert.True(t, core.IsNotFound(err))
}

func TestTransactionRepository(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewSQLEnv(t)
	testutil.CreateUnit(t, env.Units, unit.KindCulture, 3, false)
	super := testutil.CreatePrincipal(t, env.Principals, "super", principal.RoleSuperAdmin, true, principal.Grants{})

	recordedAt := time.Date(2026, 6, 1, 10, 30, 0, 123456789, time.UTC)
	ledger.NowFunc = func() time.Time { return recordedAt }
	defer func() { ledger.NowFunc = time.Now }()

	tx, created, err := env.Ledger.Record(ctx, super, ledger.NewTransaction{
		Domain:           ledger.DomainCultureWing,
		UnitID:           3,
		IdempotencyKey:   "k-1",
		Type:             "program_fee",
		Amount:           dec("1200.50"),
		Currency:         "usd",
		Description:      "50% deposit",
		CounterpartyName: "Kabila Family",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("1200.5")))
	assert.Equal(t, "USD", tx.Currency)
	assert.True(t, tx.RecordedAt.Equal(recordedAt.Truncate(time.Microsecond)))
	assert.False(t, tx.ReferenceNumber.Valid)
	assert.False(t, tx.VerifiedAt.Valid)

	// replay
	again, created, err := env.Ledger.Record(ctx, super, ledger.NewTransaction{
		Domain: ledger.DomainCultureWing, UnitID: 3, IdempotencyKey: "k-1", Type: "program_fee", Amount: dec("1200.5"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tx.ID, again.ID)

	// the key cannot be reused for another amount
	_, _, err = env.Ledger.Record(ctx, super, ledger.NewTransaction{
		Domain: ledger.DomainCultureWing, UnitID: 3, IdempotencyKey: "k-1", Type: "program_fee", Amount: dec("1"),
	})
	assert.Equal(t, ledger.ErrKeyReused, err)

	// the unique constraint backs the key
	dup := tx
	dup.ID = "0b6f2b7e-3d1c-4c55-9a0e-7b1f4c2d9e01"
	_, err = env.Transactions.CreateTransaction(ctx, dup)
	assert.Equal(t, ledger.ErrDuplicateKey, err)

	// search escapes LIKE wildcards
	ledger.NowFunc = func() time.Time { return recordedAt.Add(time.Minute) }
	other, _, err := env.Ledger.Record(ctx, super, ledger.NewTransaction{
		Domain: ledger.DomainCultureWing, UnitID: 3, Type: "venue_rent", Amount: dec("99"), Description: "500 deposit",
	})
	require.NoError(t, err)
	txs, err := env.Ledger.List(ctx, super, ledger.QueryFilter{Domain: ledger.DomainCultureWing, UnitID: 3, Search: "0%"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)

	// search folds non-ASCII letters too
	ledger.NowFunc = func() time.Time { return recordedAt.Add(2 * time.Minute) }
	accented, _, err := env.Ledger.Record(ctx, super, ledger.NewTransaction{
		Domain: ledger.DomainCultureWing, UnitID: 3, Type: "program_fee", Amount: dec("250"), Description: "Atelier ÉCOLE de danse",
	})
	require.NoError(t, err)
	for _, search := range []string{"école", "ÉCOLE", "École"} {
		txs, err = env.Ledger.List(ctx, super, ledger.QueryFilter{Domain: ledger.DomainCultureWing, UnitID: 3, Search: search})
		require.NoError(t, err)
		require.Len(t, txs, 1, search)
		assert.Equal(t, accented.ID, txs[0].ID)
	}
	require.NoError(t, env.Ledger.Delete(ctx, super, accented.ID))

	txs, err = env.Ledger.List(ctx, super, ledger.QueryFilter{
		Domain: ledger.DomainCultureWing, UnitID: 3, Ordering: core.ParseOrdering("amount", ledger.OrderingFields...),
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, []string{other.ID, tx.ID}, []string{txs[0].ID, txs[1].ID})

	// verify & delete
	verified, err := env.Ledger.Verify(ctx, super, tx.ID)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.True(t, verified.VerifiedAt.Valid)
	assert.Equal(t, super.ID, verified.VerifiedBy.String)

	bTrue := true
	txs, err = env.Ledger.List(ctx, super, ledger.QueryFilter{Domain: ledger.DomainCultureWing, UnitID: 3, Verified: &bTrue})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)

	assert.Equal(t, ledger.ErrVerifiedDelete, env.Ledger.Delete(ctx, super, tx.ID))
	require.NoError(t, env.Ledger.Delete(ctx, super, other.ID))
	_, err = env.Ledger.Get(ctx, super, other.ID)
	assert.True(t, core.IsNotFound(err))

	// one reversal per transaction
	_, err = env.Ledger.Reverse(ctx, super, tx.ID, ledger.Reversal{Reason: "typo"})
	require.NoError(t, err)
	_, err = env.Ledger.Reverse(ctx, super, tx.ID, ledger.Reversal{Reason: "typo"})
	assert.Equal(t, ledger.ErrAlreadyReversed, err)
}

func TestTransactionRepository_concurrentVerify(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewSQLEnv(t)
	testutil.CreateUnit(t, env.Units, unit.KindSchool, 7, false)
	super := testutil.CreatePrincipal(t, env.Principals, "super", principal.RoleSuperAdmin, true, principal.Grants{})

	tx, _, err := env.Ledger.Record(ctx, super, ledger.NewTransaction{
		Domain: ledger.DomainSchoolFee, UnitID: 7, Type: "revenue", Amount: dec("500"),
	})
	require.NoError(t, err)

	const n = 10
	var (
		mu        sync.Mutex
		successes int
		conflicts int
		g         errgroup.Group
	)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := env.Ledger.Verify(ctx, super, tx.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if err == ledger.ErrAlreadyVerified {
				conflicts++
			} else {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestNotificationRepository(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewSQLEnv(t)
	admin := testutil.CreatePrincipal(t, env.Principals, "admin", principal.RoleSuperAdmin, true, principal.Grants{})

	base := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	defer func() { notification.NowFunc = time.Now }()
	create := func(at time.Time, typ event.Type, amount string) notification.Notification {
		notification.NowFunc = func() time.Time { return at }
		ev := event.Event{ID: "ev", Type: typ, Domain: "school_fee", UnitID: 7, Currency: "INR", OccurredAt: at}
		if amount != "" {
			ev.Amount = dec(amount)
		}
		n, err := env.Dispatcher.Create(ctx, ev)
		require.NoError(t, err)
		return n
	}

	n1 := create(base, event.SubmissionPending, "")
	n2 := create(base.Add(time.Second), event.PaymentReceived, "40000")
	assert.False(t, n1.RelatedEntityID.Valid)

	got, err := env.Dispatcher.Get(ctx, admin, n2.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailSent)
	assert.True(t, got.EmailSentAt.Valid)
	assert.True(t, got.CreatedAt.Equal(base.Add(time.Second)))

	unread, err := env.Dispatcher.UnreadCount(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	notification.NowFunc = func() time.Time { return base.Add(time.Minute) }
	read, err := env.Dispatcher.MarkRead(ctx, admin, n1.ID)
	require.NoError(t, err)
	assert.True(t, read.ReadAt.Time.Equal(base.Add(time.Minute)))
	notification.NowFunc = func() time.Time { return base.Add(time.Hour) }
	read, err = env.Dispatcher.MarkRead(ctx, admin, n1.ID)
	require.NoError(t, err)
	assert.True(t, read.ReadAt.Time.Equal(base.Add(time.Minute)))

	count, err := env.Dispatcher.MarkAllRead(ctx, admin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	n3 := create(base.Add(2*time.Hour), event.SubmissionPending, "")
	ns, err := env.Dispatcher.ListFor(ctx, admin, notification.QueryFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, n3.ID, ns[0].ID)

	ns, err = env.Dispatcher.ListFor(ctx, admin, notification.QueryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, []string{n3.ID, n2.ID}, []string{ns[0].ID, ns[1].ID})

	_, err = env.Dispatcher.Get(ctx, admin, "5f0c8f51-9a8e-4a77-8d41-2b7a3cfe2a90")
	assert.True(t, core.IsNotFound(err))
}
