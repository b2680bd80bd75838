package store

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/erazemk/karat/internal/model"
)

const transactionColumns = `t.id, t.tenant_id, t.inventory_id, t.transaction_type, t.quantity,
	t.balance_before, t.balance_after, t.dealer_id, t.employee_id, t.description, t.notes,
	t.transaction_date, t.created_by, t.idempotency_key, t.created_at`

const transactionJoinedSelect = `SELECT ` + transactionColumns + `,
	i.item_type AS inv_item_type, i.unit AS inv_unit, i.quantity AS inv_quantity,
	i.description AS inv_description, i.location AS inv_location,
	i.low_stock_threshold AS inv_low_stock_threshold,
	d.name AS dealer_name, d.phone AS dealer_phone, d.email AS dealer_email, d.status AS dealer_status,
	e.name AS employee_name, e.role AS employee_role, e.status AS employee_status
FROM inventory_transactions t
LEFT JOIN inventory i ON i.id = t.inventory_id AND i.tenant_id = t.tenant_id
LEFT JOIN dealers d ON d.id = t.dealer_id AND d.tenant_id = t.tenant_id
LEFT JOIN employees e ON e.id = t.employee_id AND e.tenant_id = t.tenant_id`

// transactionRow is a transaction plus the columns of its joined records.
type transactionRow struct {
	model.InventoryTransaction

	InvItemType    sql.NullString      `db:"inv_item_type"`
	InvUnit        sql.NullString      `db:"inv_unit"`
	InvQuantity    decimal.NullDecimal `db:"inv_quantity"`
	InvDescription sql.NullString      `db:"inv_description"`
	InvLocation    sql.NullString      `db:"inv_location"`
	InvThreshold   decimal.NullDecimal `db:"inv_low_stock_threshold"`

	DealerName   sql.NullString `db:"dealer_name"`
	DealerPhone  sql.NullString `db:"dealer_phone"`
	DealerEmail  sql.NullString `db:"dealer_email"`
	DealerStatus sql.NullString `db:"dealer_status"`

	EmployeeName   sql.NullString `db:"employee_name"`
	EmployeeRole   sql.NullString `db:"employee_role"`
	EmployeeStatus sql.NullString `db:"employee_status"`
}

func (r transactionRow) toModel() model.InventoryTransaction {
	t := r.InventoryTransaction
	if r.InvItemType.Valid {
		t.Inventory = &model.InventoryItem{
			ID:          t.InventoryID,
			ItemType:    model.ItemType(r.InvItemType.String),
			Unit:        model.Unit(r.InvUnit.String),
			Quantity:    r.InvQuantity.Decimal,
			Description: r.InvDescription.String,
			Location:    r.InvLocation.String,

			LowStockThreshold: r.InvThreshold,
		}
	}
	if t.DealerID != nil && r.DealerName.Valid {
		t.Dealer = &model.Dealer{
			ID:     *t.DealerID,
			Name:   r.DealerName.String,
			Phone:  r.DealerPhone.String,
			Email:  r.DealerEmail.String,
			Status: model.PartyStatus(r.DealerStatus.String),
		}
	}
	if t.EmployeeID != nil && r.EmployeeName.Valid {
		t.Employee = &model.Employee{
			ID:     *t.EmployeeID,
			Name:   r.EmployeeName.String,
			Role:   r.EmployeeRole.String,
			Status: model.PartyStatus(r.EmployeeStatus.String),
		}
	}
	return t
}

// InsertTransaction appends a row to the ledger. Rows are never updated or
// deleted afterwards. A reused idempotency key yields ErrConflict.
func InsertTransaction(ctx context.Context, db Queryer, t *model.InventoryTransaction) error {
	_, err := exec(ctx, db,
		`INSERT INTO inventory_transactions
		     (id, tenant_id, inventory_id, transaction_type, quantity, balance_before, balance_after,
		      dealer_id, employee_id, description, notes, transaction_date, created_by,
		      idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.InventoryID, t.Type, t.Quantity, t.BalanceBefore, t.BalanceAfter,
		t.DealerID, t.EmployeeID, t.Description, t.Notes, t.TransactionDate, t.CreatedBy,
		t.IdempotencyKey, t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return model.ErrConflict
	}
	if err != nil {
		return model.Persistence("inserting transaction", err)
	}
	return nil
}

// GetTransaction returns one transaction with its joined records.
func GetTransaction(ctx context.Context, db Queryer, tenantID, id string) (*model.InventoryTransaction, error) {
	var row transactionRow
	err := get(ctx, db, &row, transactionJoinedSelect+` WHERE t.tenant_id = ? AND t.id = ?`, tenantID, id)
	if isNoRows(err) {
		return nil, model.NotFound("transaction", id)
	}
	if err != nil {
		return nil, model.Persistence("getting transaction", err)
	}
	t := row.toModel()
	return &t, nil
}

// GetTransactionByIdempotencyKey returns the transaction previously
// recorded under key, without joins.
func GetTransactionByIdempotencyKey(ctx context.Context, db Queryer, tenantID, key string) (*model.InventoryTransaction, error) {
	var t model.InventoryTransaction
	err := get(ctx, db, &t,
		`SELECT `+transactionColumns+` FROM inventory_transactions t
		 WHERE t.tenant_id = ? AND t.idempotency_key = ?`, tenantID, key)
	if isNoRows(err) {
		return nil, model.NotFound("transaction", key)
	}
	if err != nil {
		return nil, model.Persistence("getting transaction by idempotency key", err)
	}
	return &t, nil
}

// TransactionFilter narrows ListTransactions. Empty fields match all.
type TransactionFilter struct {
	InventoryID string
	DealerID    string
	EmployeeID  string
	Type        model.TransactionType
}

// ListTransactions returns the tenant's transactions, newest first, with
// their joined records. The list is not paginated.
func ListTransactions(ctx context.Context, db Queryer, tenantID string, f TransactionFilter) ([]model.InventoryTransaction, error) {
	query := transactionJoinedSelect + ` WHERE t.tenant_id = ?`
	args := []any{tenantID}

	if f.InventoryID != "" {
		query += ` AND t.inventory_id = ?`
		args = append(args, f.InventoryID)
	}
	if f.DealerID != "" {
		query += ` AND t.dealer_id = ?`
		args = append(args, f.DealerID)
	}
	if f.EmployeeID != "" {
		query += ` AND t.employee_id = ?`
		args = append(args, f.EmployeeID)
	}
	if f.Type != "" {
		query += ` AND t.transaction_type = ?`
		args = append(args, f.Type)
	}

	query += ` ORDER BY t.created_at DESC, t.id`

	var rows []transactionRow
	if err := sel(ctx, db, &rows, query, args...); err != nil {
		return nil, model.Persistence("listing transactions", err)
	}

	transactions := make([]model.InventoryTransaction, 0, len(rows))
	for _, r := range rows {
		transactions = append(transactions, r.toModel())
	}
	return transactions, nil
}
