// Package ledger records inventory transactions. Each call applies one
// deposit, withdraw or transfer to an item's balance and appends one
// immutable transaction row, both inside a single database transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/metrics"
	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
	"github.com/erazemk/karat/internal/validate"
)

// DefaultTimeout bounds the datastore work of one Record call.
const DefaultTimeout = 5 * time.Second

// Actor identifies who records a transaction and in which tenant.
type Actor struct {
	TenantID string
	UserID   string
}

// Input describes one transaction request.
type Input struct {
	InventoryID     string                `json:"inventory_id" validate:"required,max=64"`
	Type            model.TransactionType `json:"transaction_type" validate:"required,tx_type"`
	Quantity        decimal.Decimal       `json:"quantity"`
	DealerID        string                `json:"dealer_id" validate:"max=64"`
	EmployeeID      string                `json:"employee_id" validate:"max=64"`
	Description     string                `json:"description" validate:"max=500"`
	Notes           string                `json:"notes" validate:"max=2000"`
	TransactionDate *model.Date           `json:"transaction_date"`
	IdempotencyKey  string                `json:"-" validate:"max=200"`
}

// Validate checks the request without touching the datastore.
func (in Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if err := model.CheckQuantity("quantity", in.Quantity); err != nil {
		return err
	}
	if in.Type == model.TxTransfer && in.DealerID == "" {
		return model.Invalid("dealer_id", "is required for transfers")
	}
	return nil
}

// Result is the outcome of a successful Record call.
type Result struct {
	Transaction *model.InventoryTransaction
	Item        *model.InventoryItem
	// Replayed is set when the idempotency key matched an earlier
	// transaction and nothing new was applied.
	Replayed bool
}

// Recorder applies transactions to inventory balances.
type Recorder struct {
	db      *sqlx.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time

	// afterCommit, when set, runs after a successful commit. An error it
	// returns is reported as a failed commit.
	afterCommit func() error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithTimeout sets the per-call datastore timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the clock used for timestamps and default dates.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New returns a Recorder backed by db.
func New(db *sqlx.DB, opts ...Option) *Recorder {
	r := &Recorder{
		db:      db,
		log:     zap.NewNop(),
		timeout: DefaultTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates in, then applies it atomically. A Conflict or
// PersistenceFailure is retried once under the same idempotency key, so a
// commit that succeeded before the error is replayed rather than applied
// twice. When the caller gives no key, one is generated for the retry.
func (r *Recorder) Record(ctx context.Context, actor Actor, in Input) (*Result, error) {
	start := time.Now()

	if err := in.Validate(); err != nil {
		r.finish(in.Type, start, nil, err)
		return nil, err
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.NewString()
	}

	var (
		res *Result
		err error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		res, err = r.attempt(ctx, actor, in)
		if err == nil && attempt > 1 && res.Replayed {
			// The first attempt committed before its error was reported.
			res.Replayed = false
		}
		if err == nil || !model.IsRetryable(err) || attempt == 2 || ctx.Err() != nil {
			break
		}
		r.metrics.RecordRetry()
		r.log.Warn("retrying transaction",
			zap.String("tenant_id", actor.TenantID),
			zap.String("inventory_id", in.InventoryID),
			zap.Error(err),
		)
	}

	r.finish(in.Type, start, res, err)
	return res, err
}

func (r *Recorder) attempt(ctx context.Context, actor Actor, in Input) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.Persistence("beginning transaction", err)
	}
	defer tx.Rollback()

	prior, err := store.GetTransactionByIdempotencyKey(ctx, tx, actor.TenantID, in.IdempotencyKey)
	switch {
	case err == nil:
		if err := sameRequest(prior, in); err != nil {
			return nil, err
		}
		// Release the transaction before reading the joined view.
		_ = tx.Rollback()
		return r.replay(ctx, actor, prior)
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	item, err := store.GetInventoryItem(ctx, tx, actor.TenantID, in.InventoryID)
	if err != nil {
		return nil, err
	}

	row := &model.InventoryTransaction{
		ID:             uuid.NewString(),
		TenantID:       actor.TenantID,
		InventoryID:    item.ID,
		Type:           in.Type,
		Quantity:       in.Quantity,
		Description:    in.Description,
		Notes:          in.Notes,
		IdempotencyKey: &in.IdempotencyKey,
		CreatedAt:      r.now(),
	}
	if actor.UserID != "" {
		row.CreatedBy = &actor.UserID
	}
	if in.TransactionDate != nil && !in.TransactionDate.IsZero() {
		row.TransactionDate = *in.TransactionDate
	} else {
		row.TransactionDate = model.DateOf(row.CreatedAt)
	}

	if in.DealerID != "" {
		dealer, err := store.GetDealer(ctx, tx, actor.TenantID, in.DealerID)
		if err != nil {
			return nil, err
		}
		if dealer.Status != model.StatusActive {
			return nil, model.Invalid("dealer_id", "dealer is inactive")
		}
		row.DealerID = &dealer.ID
	}
	if in.EmployeeID != "" {
		employee, err := store.GetEmployee(ctx, tx, actor.TenantID, in.EmployeeID)
		if err != nil {
			return nil, err
		}
		if employee.Status != model.StatusActive {
			return nil, model.Invalid("employee_id", "employee is inactive")
		}
		row.EmployeeID = &employee.ID
	}

	next, err := Apply(*item, in.Type, in.Quantity)
	if err != nil {
		return nil, err
	}
	row.BalanceBefore = item.Quantity
	row.BalanceAfter = next

	if err := store.InsertTransaction(ctx, tx, row); err != nil {
		return nil, err
	}
	if err := store.UpdateBalance(ctx, tx, actor.TenantID, item.ID, next, item.Version); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Persistence("committing transaction", err)
	}
	if r.afterCommit != nil {
		if err := r.afterCommit(); err != nil {
			return nil, model.Persistence("committing transaction", err)
		}
	}

	// The balance is committed from here on. Read back the joined view,
	// falling back to what was written if the read fails.
	item.Quantity = next
	item.Version++
	item.UpdatedAt = row.CreatedAt
	res := &Result{Transaction: row, Item: item}

	if joined, err := store.GetTransaction(ctx, r.db, actor.TenantID, row.ID); err == nil {
		res.Transaction = joined
	} else {
		r.log.Warn("reading back recorded transaction", zap.String("transaction_id", row.ID), zap.Error(err))
	}
	if fresh, err := store.GetInventoryItem(ctx, r.db, actor.TenantID, item.ID); err == nil {
		res.Item = fresh
	}
	if res.Transaction.Inventory == nil {
		res.Transaction.Inventory = res.Item
	}
	return res, nil
}

func (r *Recorder) replay(ctx context.Context, actor Actor, prior *model.InventoryTransaction) (*Result, error) {
	t, err := store.GetTransaction(ctx, r.db, actor.TenantID, prior.ID)
	if err != nil {
		return nil, err
	}
	item, err := store.GetInventoryItem(ctx, r.db, actor.TenantID, prior.InventoryID)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordReplay()
	return &Result{Transaction: t, Item: item, Replayed: true}, nil
}

// sameRequest rejects reuse of an idempotency key for a different request.
// An omitted transaction date matches whatever date was recorded.
func sameRequest(prior *model.InventoryTransaction, in Input) error {
	differs := prior.InventoryID != in.InventoryID ||
		prior.Type != in.Type ||
		!prior.Quantity.Equal(in.Quantity) ||
		deref(prior.DealerID) != in.DealerID ||
		deref(prior.EmployeeID) != in.EmployeeID
	if in.TransactionDate != nil && !in.TransactionDate.IsZero() &&
		in.TransactionDate.String() != prior.TransactionDate.String() {
		differs = true
	}
	if differs {
		return model.Invalid("idempotency_key", "was already used for a different transaction")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Apply computes the balance after applying a transaction of kind and
// quantity q to item. Debits that would go below zero fail with an
// InsufficientQuantityError and deposits may not reach MaxQuantity.
func Apply(item model.InventoryItem, kind model.TransactionType, q decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case kind == model.TxDeposit:
		next := item.Quantity.Add(q)
		if next.GreaterThanOrEqual(model.MaxQuantity) {
			return decimal.Zero, model.Invalid("quantity", "would exceed the maximum balance")
		}
		return next, nil
	case kind.Debits():
		next := item.Quantity.Sub(q)
		if next.IsNegative() {
			return decimal.Zero, &model.InsufficientQuantityError{
				ItemID:    item.ID,
				Unit:      item.Unit,
				Available: item.Quantity,
				Requested: q,
			}
		}
		return next, nil
	default:
		return decimal.Zero, model.Invalid("transaction_type", fmt.Sprintf("unknown type %q", kind))
	}
}

func (r *Recorder) finish(kind model.TransactionType, start time.Time, res *Result, err error) {
	outcome := Outcome(err)
	if res != nil && res.Replayed {
		outcome = "replayed"
	}
	r.metrics.RecordTransaction(string(kind), outcome, time.Since(start))

	switch {
	case err == nil:
		r.log.Info("transaction recorded",
			zap.String("transaction_id", res.Transaction.ID),
			zap.String("inventory_id", res.Transaction.InventoryID),
			zap.String("type", string(kind)),
			zap.Stringer("quantity", res.Transaction.Quantity),
			zap.Stringer("balance", res.Item.Quantity),
			zap.Bool("replayed", res.Replayed),
		)
	case model.IsClientError(err):
		r.log.Debug("transaction rejected", zap.String("type", string(kind)), zap.Error(err))
	default:
		r.log.Error("recording transaction", zap.String("type", string(kind)), zap.Error(err))
	}
}

// Outcome names the error class of err for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	default:
		return "persistence"
	}
}
