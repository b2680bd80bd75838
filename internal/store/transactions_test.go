package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/karat/internal/model"
)

func newTx(tenantID, itemID string, kind model.TransactionType, qty string) *model.InventoryTransaction {
	ts := time.Now().UTC()
	q := decimal.RequireFromString(qty)
	return &model.InventoryTransaction{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		InventoryID:     itemID,
		Type:            kind,
		Quantity:        q,
		BalanceBefore:   decimal.NewFromInt(100),
		BalanceAfter:    decimal.NewFromInt(100).Sub(q),
		TransactionDate: model.DateOf(ts),
		CreatedAt:       ts,
	}
}

func TestInsertAndGetTransaction(t *testing.T) {
	database, tenantID := setupTenant(t)
	ctx := context.Background()

	item := mustItem(t, database, tenantID, "100")
	dealer, err := CreateDealer(ctx, database, tenantID, PartyInput{Name: "Bullion Co"})
	require.NoError(t, err)

	tx := newTx(tenantID, item.ID, model.TxTransfer, "20.25")
	tx.DealerID = &dealer.ID
	tx.Notes = "consignment"
	require.NoError(t, InsertTransaction(ctx, database, tx))

	got, err := GetTransaction(ctx, database, tenantID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxTransfer, got.Type)
	assert.True(t, got.Quantity.Equal(decimal.RequireFromString("20.25")))
	assert.True(t, got.BalanceAfter.Equal(decimal.RequireFromString("79.75")))
	assert.Equal(t, tx.TransactionDate.String(), got.TransactionDate.String())
	assert.Equal(t, "consignment", got.Notes)

	require.NotNil(t, got.Inventory)
	assert.Equal(t, model.ItemGold, got.Inventory.ItemType)
	require.NotNil(t, got.Dealer)
	assert.Equal(t, "Bullion Co", got.Dealer.Name)
	assert.Nil(t, got.Employee)
}

func TestInsertTransactionDuplicateIdempotencyKey(t *testing.T) {
	database, tenantID := setupTenant(t)
	ctx := context.Background()

	item := mustItem(t, database, tenantID, "100")
	key := "abc-123"

	first := newTx(tenantID, item.ID, model.TxWithdraw, "1")
	first.IdempotencyKey = &key
	require.NoError(t, InsertTransaction(ctx, database, first))

	second := newTx(tenantID, item.ID, model.TxWithdraw, "1")
	second.IdempotencyKey = &key
	assert.ErrorIs(t, InsertTransaction(ctx, database, second), model.ErrConflict)

	got, err := GetTransactionByIdempotencyKey(ctx, database, tenantID, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = GetTransactionByIdempotencyKey(ctx, database, tenantID, "other")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListTransactionsFiltered(t *testing.T) {
	database, tenantID := setupTenant(t)
	ctx := context.Background()

	item1 := mustItem(t, database, tenantID, "100")
	item2 := mustItem(t, database, tenantID, "100")
	employee, err := CreateEmployee(ctx, database, tenantID, PartyInput{Name: "Maja"})
	require.NoError(t, err)

	d1 := newTx(tenantID, item1.ID, model.TxDeposit, "5")
	d1.EmployeeID = &employee.ID
	require.NoError(t, InsertTransaction(ctx, database, d1))
	require.NoError(t, InsertTransaction(ctx, database, newTx(tenantID, item1.ID, model.TxWithdraw, "2")))
	require.NoError(t, InsertTransaction(ctx, database, newTx(tenantID, item2.ID, model.TxWithdraw, "3")))

	all, err := ListTransactions(ctx, database, tenantID, TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byItem, err := ListTransactions(ctx, database, tenantID, TransactionFilter{InventoryID: item1.ID})
	require.NoError(t, err)
	assert.Len(t, byItem, 2)

	byType, err := ListTransactions(ctx, database, tenantID, TransactionFilter{Type: model.TxWithdraw})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byEmployee, err := ListTransactions(ctx, database, tenantID, TransactionFilter{EmployeeID: employee.ID})
	require.NoError(t, err)
	require.Len(t, byEmployee, 1)
	require.NotNil(t, byEmployee[0].Employee)
	assert.Equal(t, "Maja", byEmployee[0].Employee.Name)

	other, err := CreateTenant(ctx, database, "Other shop")
	require.NoError(t, err)
	none, err := ListTransactions(ctx, database, other.ID, TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = GetTransaction(ctx, database, other.ID, d1.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
