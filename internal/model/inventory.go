package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Quantities travel as JSON numbers, the way the frontend sends them.
	decimal.MarshalJSONWithoutQuotes = true
}

// ItemType is the stock category of an inventory item.
type ItemType string

// Item types.
const (
	ItemGold      ItemType = "gold"
	ItemSilver    ItemType = "silver"
	ItemPlatinum  ItemType = "platinum"
	ItemDiamonds  ItemType = "diamonds"
	ItemGemstones ItemType = "gemstones"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemGold, ItemSilver, ItemPlatinum, ItemDiamonds, ItemGemstones:
		return true
	}
	return false
}

// Unit is the measure an item's quantity is kept in.
type Unit string

// Units.
const (
	UnitGrams     Unit = "grams"
	UnitOunces    Unit = "ounces"
	UnitKilograms Unit = "kilograms"
	UnitCarats    Unit = "carats"
	UnitPieces    Unit = "pieces"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitGrams, UnitOunces, UnitKilograms, UnitCarats, UnitPieces:
		return true
	}
	return false
}

// StockStatus is the display state derived from an item's balance.
type StockStatus string

// Stock statuses.
const (
	StockEmpty   StockStatus = "Empty"
	StockLow     StockStatus = "Low"
	StockInStock StockStatus = "In Stock"
)

// QuantityScale is the number of fractional digits a quantity may carry.
const QuantityScale = 4

// MaxQuantity bounds any single quantity (NUMERIC(18,4) in Postgres).
var MaxQuantity = decimal.New(1, 14)

// InventoryItem is a trackable stock line with a running balance.
// Quantity only changes through recorded transactions.
type InventoryItem struct {
	ID                string              `db:"id" json:"id"`
	TenantID          string              `db:"tenant_id" json:"-"`
	ItemType          ItemType            `db:"item_type" json:"item_type"`
	Quantity          decimal.Decimal     `db:"quantity" json:"quantity"`
	Unit              Unit                `db:"unit" json:"unit"`
	Description       string              `db:"description" json:"description"`
	Location          string              `db:"location" json:"location"`
	Notes             string              `db:"notes" json:"notes"`
	LowStockThreshold decimal.NullDecimal `db:"low_stock_threshold" json:"low_stock_threshold"`
	ImageMime         *string             `db:"image_mime" json:"image_mime,omitempty"`
	Version           int64               `db:"version" json:"version"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// Status derives the stock status from the current balance.
func (i InventoryItem) Status() StockStatus {
	switch {
	case i.Quantity.Sign() <= 0:
		return StockEmpty
	case i.LowStockThreshold.Valid && i.Quantity.LessThanOrEqual(i.LowStockThreshold.Decimal):
		return StockLow
	default:
		return StockInStock
	}
}

// MarshalJSON adds the derived status to the encoded item.
func (i InventoryItem) MarshalJSON() ([]byte, error) {
	type item InventoryItem
	return json.Marshal(struct {
		item
		Status StockStatus `json:"status"`
	}{item(i), i.Status()})
}

// CheckQuantity validates a caller-supplied quantity: strictly positive,
// at most QuantityScale fractional digits, below MaxQuantity.
func CheckQuantity(field string, q decimal.Decimal) error {
	if !q.IsPositive() {
		return Invalid(field, "must be a positive number")
	}
	if !q.Equal(q.Truncate(QuantityScale)) {
		return Invalid(field, "must have at most 4 decimal places")
	}
	if q.GreaterThanOrEqual(MaxQuantity) {
		return Invalid(field, "is too large")
	}
	return nil
}
