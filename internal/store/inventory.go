package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erazemk/karat/internal/model"
)

const inventoryColumns = `id, tenant_id, item_type, quantity, unit, description, location, notes,
	low_stock_threshold, image_mime, version, created_at, updated_at`

// NewInventoryItem is the input to CreateInventoryItem.
type NewInventoryItem struct {
	ItemType          model.ItemType
	Quantity          decimal.Decimal
	Unit              model.Unit
	Description       string
	Location          string
	Notes             string
	LowStockThreshold decimal.NullDecimal
}

// Validate checks category, unit and initial quantity.
func (n NewInventoryItem) Validate() error {
	if !n.ItemType.Valid() {
		return model.Invalid("item_type", "must be one of gold, silver, platinum, diamonds, gemstones")
	}
	if !n.Unit.Valid() {
		return model.Invalid("unit", "must be one of grams, ounces, kilograms, carats, pieces")
	}
	if err := model.CheckQuantity("quantity", n.Quantity); err != nil {
		return err
	}
	return checkThreshold(n.LowStockThreshold)
}

// CreateInventoryItem adds a new stock line with its initial quantity.
func CreateInventoryItem(ctx context.Context, db Queryer, tenantID string, in NewInventoryItem) (*model.InventoryItem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ts := now()
	item := &model.InventoryItem{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		ItemType:          in.ItemType,
		Quantity:          in.Quantity,
		Unit:              in.Unit,
		Description:       strings.TrimSpace(in.Description),
		Location:          strings.TrimSpace(in.Location),
		Notes:             in.Notes,
		LowStockThreshold: in.LowStockThreshold,
		Version:           1,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}

	_, err := exec(ctx, db,
		`INSERT INTO inventory (id, tenant_id, item_type, quantity, unit, description, location, notes,
		                        low_stock_threshold, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TenantID, item.ItemType, item.Quantity, item.Unit, item.Description,
		item.Location, item.Notes, item.LowStockThreshold, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, model.Persistence("creating inventory item", err)
	}
	return item, nil
}

// GetInventoryItem returns one item of the tenant. Items of other tenants
// are reported as not found.
func GetInventoryItem(ctx context.Context, db Queryer, tenantID, id string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := get(ctx, db, &item,
		`SELECT `+inventoryColumns+` FROM inventory WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	if isNoRows(err) {
		return nil, model.NotFound("inventory item", id)
	}
	if err != nil {
		return nil, model.Persistence("getting inventory item", err)
	}
	return &item, nil
}

// ListInventory returns every item of the tenant, newest first. The list
// is not paginated.
func ListInventory(ctx context.Context, db Queryer, tenantID string) ([]model.InventoryItem, error) {
	items := []model.InventoryItem{}
	err := sel(ctx, db, &items,
		`SELECT `+inventoryColumns+` FROM inventory
		 WHERE tenant_id = ? ORDER BY created_at DESC, id`, tenantID)
	if err != nil {
		return nil, model.Persistence("listing inventory", err)
	}
	return items, nil
}

// UpdateBalance overwrites an item's quantity if its version still matches
// expectedVersion, and bumps the version. It is only called by the ledger
// inside its database transaction. A stale version yields ErrConflict.
func UpdateBalance(ctx context.Context, db Queryer, tenantID, id string, quantity decimal.Decimal, expectedVersion int64) error {
	if quantity.IsNegative() {
		return model.Invalid("quantity", "balance cannot be negative")
	}
	n, err := exec(ctx, db,
		`UPDATE inventory SET quantity = ?, version = version + 1, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND version = ?`,
		quantity, now(), tenantID, id, expectedVersion,
	)
	if err != nil {
		return model.Persistence("updating inventory balance", err)
	}
	if n == 0 {
		return model.ErrConflict
	}
	return nil
}

// InventoryDetails holds the editable non-quantity fields. Nil fields are
// left unchanged.
type InventoryDetails struct {
	Description       *string
	Location          *string
	Notes             *string
	LowStockThreshold *decimal.NullDecimal
}

// UpdateInventoryDetails edits an item's descriptive fields. Quantity,
// type and unit are never touched here.
func UpdateInventoryDetails(ctx context.Context, db Queryer, tenantID, id string, d InventoryDetails) (*model.InventoryItem, error) {
	item, err := GetInventoryItem(ctx, db, tenantID, id)
	if err != nil {
		return nil, err
	}

	if d.Description != nil {
		item.Description = strings.TrimSpace(*d.Description)
	}
	if d.Location != nil {
		item.Location = strings.TrimSpace(*d.Location)
	}
	if d.Notes != nil {
		item.Notes = *d.Notes
	}
	if d.LowStockThreshold != nil {
		if err := checkThreshold(*d.LowStockThreshold); err != nil {
			return nil, err
		}
		item.LowStockThreshold = *d.LowStockThreshold
	}
	item.UpdatedAt = now()

	_, err = exec(ctx, db,
		`UPDATE inventory SET description = ?, location = ?, notes = ?, low_stock_threshold = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		item.Description, item.Location, item.Notes, item.LowStockThreshold, item.UpdatedAt,
		tenantID, id,
	)
	if err != nil {
		return nil, model.Persistence("updating inventory item", err)
	}
	return item, nil
}

// SetInventoryImage stores an item's photo.
func SetInventoryImage(ctx context.Context, db Queryer, tenantID, id string, data []byte, mime string) error {
	n, err := exec(ctx, db,
		`UPDATE inventory SET image = ?, image_mime = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		data, mime, now(), tenantID, id,
	)
	if err != nil {
		return model.Persistence("setting inventory image", err)
	}
	if n == 0 {
		return model.NotFound("inventory item", id)
	}
	return nil
}

// GetInventoryImage returns an item's photo and its MIME type. An item
// without a photo is reported as not found.
func GetInventoryImage(ctx context.Context, db Queryer, tenantID, id string) ([]byte, string, error) {
	var row struct {
		Image []byte  `db:"image"`
		Mime  *string `db:"image_mime"`
	}
	err := get(ctx, db, &row,
		`SELECT image, image_mime FROM inventory WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if isNoRows(err) || (err == nil && (row.Image == nil || row.Mime == nil)) {
		return nil, "", model.NotFound("image for inventory item", id)
	}
	if err != nil {
		return nil, "", model.Persistence("getting inventory image", err)
	}
	return row.Image, *row.Mime, nil
}

func checkThreshold(t decimal.NullDecimal) error {
	if !t.Valid {
		return nil
	}
	if t.Decimal.IsNegative() {
		return model.Invalid("low_stock_threshold", "cannot be negative")
	}
	if !t.Decimal.Equal(t.Decimal.Truncate(model.QuantityScale)) {
		return model.Invalid("low_stock_threshold", "must have at most 4 decimal places")
	}
	if t.Decimal.GreaterThanOrEqual(model.MaxQuantity) {
		return model.Invalid("low_stock_threshold", "is too large")
	}
	return nil
}
