package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/karat/internal/db"
	"github.com/erazemk/karat/internal/model"
)

func setupTenant(t *testing.T) (*sqlx.DB, string) {
	t.Helper()
	database := db.NewTestDB(t)
	tenant, err := CreateTenant(context.Background(), database, "Goldsmith "+t.Name())
	require.NoError(t, err)
	return database, tenant.ID
}

func mustItem(t *testing.T, database *sqlx.DB, tenantID, qty string) *model.InventoryItem {
	t.Helper()
	item, err := CreateInventoryItem(context.Background(), database, tenantID, NewInventoryItem{
		ItemType: model.ItemGold,
		Quantity: decimal.RequireFromString(qty),
		Unit:     model.UnitGrams,
	})
	require.NoError(t, err)
	return item
}
