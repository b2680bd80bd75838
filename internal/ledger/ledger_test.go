package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite"

	"github.com/erazemk/karat/internal/db"
	"github.com/erazemk/karat/internal/metrics"
	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
)

type fixture struct {
	db       *sqlx.DB
	recorder *Recorder
	metrics  *metrics.Metrics
	actor    Actor
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return setupWithDB(t, db.NewTestDB(t), opts...)
}

func setupWithDB(t *testing.T, database *sqlx.DB, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	tenant, err := store.CreateTenant(ctx, database, "Zlatarna")
	require.NoError(t, err)
	user, err := store.CreateUser(ctx, database, tenant.ID, "clerk", "hash", model.RoleUser)
	require.NoError(t, err)

	m := metrics.New()
	opts = append([]Option{WithMetrics(m)}, opts...)
	return &fixture{
		db:       database,
		recorder: New(database, opts...),
		metrics:  m,
		actor:    Actor{TenantID: tenant.ID, UserID: user.ID},
	}
}

func (f *fixture) item(t *testing.T, qty string) *model.InventoryItem {
	t.Helper()
	item, err := store.CreateInventoryItem(context.Background(), f.db, f.actor.TenantID, store.NewInventoryItem{
		ItemType: model.ItemGold,
		Quantity: decimal.RequireFromString(qty),
		Unit:     model.UnitGrams,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) dealer(t *testing.T, status model.PartyStatus) *model.Dealer {
	t.Helper()
	d, err := store.CreateDealer(context.Background(), f.db, f.actor.TenantID, store.PartyInput{Name: "Bullion Co", Status: status})
	require.NoError(t, err)
	return d
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	item, err := store.GetInventoryItem(context.Background(), f.db, f.actor.TenantID, id)
	require.NoError(t, err)
	return item.Quantity
}

func (f *fixture) history(t *testing.T, id string) []model.InventoryTransaction {
	t.Helper()
	txs, err := store.ListTransactions(context.Background(), f.db, f.actor.TenantID, store.TransactionFilter{InventoryID: id})
	require.NoError(t, err)
	return txs
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWithdrawToEmptyThenInsufficient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "500")

	res, err := f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("500")})
	require.NoError(t, err)
	assert.True(t, res.Item.Quantity.IsZero())
	assert.Equal(t, model.StockEmpty, res.Item.Status())
	assert.True(t, res.Transaction.BalanceBefore.Equal(qty("500")))
	assert.True(t, res.Transaction.BalanceAfter.IsZero())
	require.NotNil(t, res.Transaction.CreatedBy)
	assert.Equal(t, f.actor.UserID, *res.Transaction.CreatedBy)

	_, err = f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInsufficientQuantity)

	var insufficient *model.InsufficientQuantityError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.IsZero())
	assert.True(t, insufficient.Requested.Equal(qty("1")))
	assert.Equal(t, model.UnitGrams, insufficient.Unit)

	assert.True(t, f.balance(t, item.ID).IsZero())
	assert.Len(t, f.history(t, item.ID), 1)
}

func TestTransferToActiveDealer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "1000")
	dealer := f.dealer(t, model.StatusActive)

	res, err := f.recorder.Record(ctx, f.actor, Input{
		InventoryID: item.ID,
		Type:        model.TxTransfer,
		Quantity:    qty("200"),
		DealerID:    dealer.ID,
	})
	require.NoError(t, err)
	assert.True(t, res.Item.Quantity.Equal(qty("800")))
	assert.Equal(t, model.TxTransfer, res.Transaction.Type)
	require.NotNil(t, res.Transaction.DealerID)
	assert.Equal(t, dealer.ID, *res.Transaction.DealerID)
	require.NotNil(t, res.Transaction.Dealer)
	assert.Equal(t, "Bullion Co", res.Transaction.Dealer.Name)
	require.NotNil(t, res.Transaction.Inventory)
	assert.Equal(t, item.ID, res.Transaction.Inventory.ID)

	assert.True(t, f.balance(t, item.ID).Equal(qty("800")))
}

func TestTransferRequiresActiveDealer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "1000")

	_, err := f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxTransfer, Quantity: qty("1")})
	assert.ErrorIs(t, err, model.ErrValidation)

	inactive := f.dealer(t, model.StatusInactive)
	_, err = f.recorder.Record(ctx, f.actor, Input{
		InventoryID: item.ID, Type: model.TxTransfer, Quantity: qty("1"), DealerID: inactive.ID,
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.recorder.Record(ctx, f.actor, Input{
		InventoryID: item.ID, Type: model.TxTransfer, Quantity: qty("1"), DealerID: "no-such-dealer",
	})
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.True(t, f.balance(t, item.ID).Equal(qty("1000")))
	assert.Empty(t, f.history(t, item.ID))
}

func TestInactiveEmployeeRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "10")

	e, err := store.CreateEmployee(ctx, f.db, f.actor.TenantID, store.PartyInput{Name: "Maja", Status: model.StatusInactive})
	require.NoError(t, err)

	_, err = f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxDeposit, Quantity: qty("1"), EmployeeID: e.ID})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.True(t, f.balance(t, item.ID).Equal(qty("10")))
}

func TestInvalidInputChangesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "100")

	tests := []struct {
		name string
		in   Input
	}{
		{"negative deposit", Input{InventoryID: item.ID, Type: model.TxDeposit, Quantity: qty("-5")}},
		{"zero withdraw", Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: decimal.Zero}},
		{"too many decimals", Input{InventoryID: item.ID, Type: model.TxDeposit, Quantity: qty("1.00001")}},
		{"unknown type", Input{InventoryID: item.ID, Type: "adjust", Quantity: qty("1")}},
		{"missing item", Input{Type: model.TxDeposit, Quantity: qty("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.recorder.Record(ctx, f.actor, tt.in)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	assert.True(t, f.balance(t, item.ID).Equal(qty("100")))
	assert.Empty(t, f.history(t, item.ID))
}

func TestItemOfOtherTenantNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "100")

	other, err := store.CreateTenant(ctx, f.db, "Other shop")
	require.NoError(t, err)

	_, err = f.recorder.Record(ctx, Actor{TenantID: other.ID}, Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("1")})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, f.balance(t, item.ID).Equal(qty("100")))
}

func TestDepositThenWithdrawRestoresBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "12.3456")

	_, err := f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxDeposit, Quantity: qty("0.0001")})
	require.NoError(t, err)
	_, err = f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("0.0001")})
	require.NoError(t, err)

	assert.True(t, f.balance(t, item.ID).Equal(qty("12.3456")))
	assert.Len(t, f.history(t, item.ID), 2)
}

func TestBalanceNeverNegative(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "50")

	rng := rand.New(rand.NewSource(42))
	expected := qty("50")
	recorded := 0

	for i := 0; i < 60; i++ {
		kind := model.TxWithdraw
		if rng.Intn(3) == 0 {
			kind = model.TxDeposit
		}
		q := decimal.New(int64(rng.Intn(2000)+1), -2) // 0.01 .. 20.00

		res, err := f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: kind, Quantity: q})
		if err != nil {
			require.ErrorIs(t, err, model.ErrInsufficientQuantity)
			require.True(t, expected.LessThan(q))
			continue
		}
		recorded++
		if kind == model.TxDeposit {
			expected = expected.Add(q)
		} else {
			expected = expected.Sub(q)
		}
		require.False(t, res.Item.Quantity.IsNegative())
		require.True(t, res.Item.Quantity.Equal(expected))
	}

	assert.True(t, f.balance(t, item.ID).Equal(expected))
	assert.Len(t, f.history(t, item.ID), recorded)
}

func TestListingTransactionsIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "100")

	for _, q := range []string{"1", "2", "3"} {
		_, err := f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty(q)})
		require.NoError(t, err)
	}

	first := f.history(t, item.ID)
	second := f.history(t, item.ID)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.True(t, f.balance(t, item.ID).Equal(qty("94")))
}

// fileDB opens a file-backed database with a real connection pool so
// concurrent writers actually contend.
func fileDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "karat.db"), db.Options{MaxOpenConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.EnsureSchema(database))
	return database
}

func TestConcurrentWithdrawalsExactlyOneSucceeds(t *testing.T) {
	f := setupWithDB(t, fileDB(t), WithTimeout(30*time.Second))
	item := f.item(t, "25")

	var (
		wg     sync.WaitGroup
		errs   = make([]error, 2)
		starts = make(chan struct{})
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-starts
			_, errs[i] = f.recorder.Record(context.Background(), f.actor,
				Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("25")})
		}(i)
	}
	close(starts)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, model.ErrInsufficientQuantity) || errors.Is(err, model.ErrConflict), err)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.balance(t, item.ID).IsZero())
	assert.Len(t, f.history(t, item.ID), 1)
}

func TestManyConcurrentWithdrawals(t *testing.T) {
	f := setupWithDB(t, fileDB(t), WithTimeout(30*time.Second))
	item := f.item(t, "10")

	const contenders = 30
	var (
		wg     sync.WaitGroup
		errs   = make([]error, contenders)
		starts = make(chan struct{})
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-starts
			_, errs[i] = f.recorder.Record(context.Background(), f.actor,
				Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("1")})
		}(i)
	}
	close(starts)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, model.ErrInsufficientQuantity) || errors.Is(err, model.ErrConflict), err)
	}
	assert.Equal(t, 10, succeeded)
	assert.True(t, f.balance(t, item.ID).IsZero())
	assert.Len(t, f.history(t, item.ID), 10)
}

// versionBumps is how many more ledger inserts the bump_version trigger
// will race with a concurrent writer.
var versionBumps atomic.Int32

func init() {
	sqlite.MustRegisterScalarFunction("karat_bump_version", 0,
		func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
			for {
				n := versionBumps.Load()
				if n <= 0 {
					return int64(0), nil
				}
				if versionBumps.CompareAndSwap(n, n-1) {
					return int64(1), nil
				}
			}
		})
}

// raceInserts makes the next n transaction inserts bump the item's version
// first, as a concurrent writer committing in between would.
func raceInserts(t *testing.T, database *sqlx.DB, n int32) {
	t.Helper()
	_, err := database.Exec(`CREATE TRIGGER bump_version BEFORE INSERT ON inventory_transactions
		WHEN karat_bump_version()
		BEGIN
			UPDATE inventory SET version = version + 1 WHERE id = NEW.inventory_id;
		END`)
	require.NoError(t, err)
	versionBumps.Store(n)
	t.Cleanup(func() { versionBumps.Store(0) })
}

func TestConflictIsRetriedOnce(t *testing.T) {
	f := setup(t)
	item := f.item(t, "10")
	raceInserts(t, f.db, 1)

	res, err := f.recorder.Record(context.Background(), f.actor,
		Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("3")})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.True(t, res.Item.Quantity.Equal(qty("7")))

	assert.True(t, f.balance(t, item.ID).Equal(qty("7")))
	assert.Len(t, f.history(t, item.ID), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransactionRetries))
}

func TestSecondConflictSurfaces(t *testing.T) {
	f := setup(t)
	item := f.item(t, "10")
	raceInserts(t, f.db, 2)

	_, err := f.recorder.Record(context.Background(), f.actor,
		Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("3")})
	require.ErrorIs(t, err, model.ErrConflict)

	assert.True(t, f.balance(t, item.ID).Equal(qty("10")))
	assert.Empty(t, f.history(t, item.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransactionRetries))
}

func TestLostCommitAckIsNotAppliedTwice(t *testing.T) {
	f := setup(t)
	item := f.item(t, "10")

	failures := 1
	f.recorder.afterCommit = func() error {
		if failures > 0 {
			failures--
			return errors.New("connection reset")
		}
		return nil
	}

	res, err := f.recorder.Record(context.Background(), f.actor,
		Input{InventoryID: item.ID, Type: model.TxDeposit, Quantity: qty("5")})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.True(t, res.Item.Quantity.Equal(qty("15")))

	assert.True(t, f.balance(t, item.ID).Equal(qty("15")))
	assert.Len(t, f.history(t, item.ID), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransactionRetries))
}

func TestIdempotentReplay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "100")

	in := Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("10"), IdempotencyKey: "req-1"}

	first, err := f.recorder.Record(ctx, f.actor, in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.recorder.Record(ctx, f.actor, in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.True(t, second.Item.Quantity.Equal(qty("90")))

	assert.True(t, f.balance(t, item.ID).Equal(qty("90")))
	assert.Len(t, f.history(t, item.ID), 1)

	in.Quantity = qty("11")
	_, err = f.recorder.Record(ctx, f.actor, in)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestIdempotencyKeyReuseWithDifferentParties(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.item(t, "100")
	d1 := f.dealer(t, model.StatusActive)
	d2 := f.dealer(t, model.StatusActive)
	backdated, err := model.ParseDate("2026-01-15")
	require.NoError(t, err)

	in := Input{InventoryID: item.ID, Type: model.TxTransfer, Quantity: qty("10"),
		DealerID: d1.ID, TransactionDate: &backdated, IdempotencyKey: "req-2"}
	_, err = f.recorder.Record(ctx, f.actor, in)
	require.NoError(t, err)

	other := in
	other.DealerID = d2.ID
	_, err = f.recorder.Record(ctx, f.actor, other)
	assert.ErrorIs(t, err, model.ErrValidation)

	other = in
	employee, err := store.CreateEmployee(ctx, f.db, f.actor.TenantID, store.PartyInput{Name: "Ana"})
	require.NoError(t, err)
	other.EmployeeID = employee.ID
	_, err = f.recorder.Record(ctx, f.actor, other)
	assert.ErrorIs(t, err, model.ErrValidation)

	other = in
	later, err := model.ParseDate("2026-01-16")
	require.NoError(t, err)
	other.TransactionDate = &later
	_, err = f.recorder.Record(ctx, f.actor, other)
	assert.ErrorIs(t, err, model.ErrValidation)

	// Omitting the date still matches the recorded request.
	other = in
	other.TransactionDate = nil
	res, err := f.recorder.Record(ctx, f.actor, other)
	require.NoError(t, err)
	assert.True(t, res.Replayed)

	assert.True(t, f.balance(t, item.ID).Equal(qty("90")))
	assert.Len(t, f.history(t, item.ID), 1)
}

func TestJoinedInventoryCarriesThreshold(t *testing.T) {
	f := setup(t)
	item, err := store.CreateInventoryItem(context.Background(), f.db, f.actor.TenantID, store.NewInventoryItem{
		ItemType:          model.ItemSilver,
		Quantity:          qty("100"),
		Unit:              model.UnitGrams,
		LowStockThreshold: decimal.NewNullDecimal(qty("50")),
	})
	require.NoError(t, err)

	res, err := f.recorder.Record(context.Background(), f.actor,
		Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("60")})
	require.NoError(t, err)
	require.NotNil(t, res.Transaction.Inventory)
	assert.Equal(t, model.StockLow, res.Transaction.Inventory.Status())

	listed := f.history(t, item.ID)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Inventory)
	assert.True(t, listed[0].Inventory.LowStockThreshold.Valid)
	assert.Equal(t, model.StockLow, listed[0].Inventory.Status())
}

func TestTimeoutSurfacesAsPersistenceFailure(t *testing.T) {
	f := setup(t, WithTimeout(time.Nanosecond))
	item := f.item(t, "100")

	_, err := f.recorder.Record(context.Background(), f.actor, Input{InventoryID: item.ID, Type: model.TxWithdraw, Quantity: qty("1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	assert.True(t, f.balance(t, item.ID).Equal(qty("100")))
	assert.Empty(t, f.history(t, item.ID))
}

func TestTransactionDateDefaultsToToday(t *testing.T) {
	fixed := time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)
	f := setup(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	item := f.item(t, "10")

	res, err := f.recorder.Record(ctx, f.actor, Input{InventoryID: item.ID, Type: model.TxDeposit, Quantity: qty("1")})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04", res.Transaction.TransactionDate.String())

	backdated := model.DateOf(time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC))
	res, err = f.recorder.Record(ctx, f.actor, Input{
		InventoryID: item.ID, Type: model.TxDeposit, Quantity: qty("1"), TransactionDate: &backdated,
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-04-30", res.Transaction.TransactionDate.String())
}

func TestApply(t *testing.T) {
	item := model.InventoryItem{ID: "x", Quantity: qty("10"), Unit: model.UnitOunces}

	next, err := Apply(item, model.TxDeposit, qty("2.5"))
	require.NoError(t, err)
	assert.True(t, next.Equal(qty("12.5")))

	next, err = Apply(item, model.TxTransfer, qty("10"))
	require.NoError(t, err)
	assert.True(t, next.IsZero())

	_, err = Apply(item, model.TxWithdraw, qty("10.0001"))
	assert.ErrorIs(t, err, model.ErrInsufficientQuantity)

	_, err = Apply(model.InventoryItem{Quantity: qty("99999999999999")}, model.TxDeposit, qty("1"))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "validation", Outcome(model.Invalid("x", "y")))
	assert.Equal(t, "not_found", Outcome(model.NotFound("item", "1")))
	assert.Equal(t, "insufficient_quantity", Outcome(&model.InsufficientQuantityError{}))
	assert.Equal(t, "conflict", Outcome(model.ErrConflict))
	assert.Equal(t, "persistence", Outcome(model.Persistence("op", errors.New("boom"))))
}
