package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of ledger movement.
type TransactionType string

// Transaction types. Deposit increases the balance; withdraw and transfer
// decrease it.
const (
	TxDeposit  TransactionType = "deposit"
	TxWithdraw TransactionType = "withdraw"
	TxTransfer TransactionType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TxDeposit || t == TxWithdraw || t == TxTransfer
}

// Debits reports whether t reduces the item's balance.
func (t TransactionType) Debits() bool {
	return t == TxWithdraw || t == TxTransfer
}

// InventoryTransaction is an immutable record of one movement against an
// inventory item. Rows are never updated or deleted.
type InventoryTransaction struct {
	ID              string          `db:"id" json:"id"`
	TenantID        string          `db:"tenant_id" json:"-"`
	InventoryID     string          `db:"inventory_id" json:"inventory_id"`
	Type            TransactionType `db:"transaction_type" json:"transaction_type"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	BalanceBefore   decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter    decimal.Decimal `db:"balance_after" json:"balance_after"`
	DealerID        *string         `db:"dealer_id" json:"dealer_id"`
	EmployeeID      *string         `db:"employee_id" json:"employee_id"`
	Description     string          `db:"description" json:"description"`
	Notes           string          `db:"notes" json:"notes"`
	TransactionDate Date            `db:"transaction_date" json:"transaction_date"`
	CreatedBy       *string         `db:"created_by" json:"created_by,omitempty"`
	IdempotencyKey  *string         `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`

	// Joined at read time for display; nil when not loaded.
	Inventory *InventoryItem `db:"-" json:"inventory,omitempty"`
	Dealer    *Dealer        `db:"-" json:"dealer,omitempty"`
	Employee  *Employee      `db:"-" json:"employee,omitempty"`
}
