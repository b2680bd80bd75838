package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/validate"
)

const dealerColumns = `id, tenant_id, name, phone, email, notes, status, created_at, updated_at`

// PartyInput holds the editable fields shared by dealers and employees.
type PartyInput struct {
	Name   string            `json:"name" validate:"required,max=200"`
	Role   string            `json:"role" validate:"max=100"`
	Phone  string            `json:"phone" validate:"max=50"`
	Email  string            `json:"email" validate:"omitempty,email,max=200"`
	Notes  string            `json:"notes" validate:"max=2000"`
	Status model.PartyStatus `json:"status" validate:"party_status"`
}

func (p *PartyInput) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
	if err := validate.Struct(p); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = model.StatusActive
	}
	return nil
}

// CreateDealer adds a dealer to the tenant.
func CreateDealer(ctx context.Context, db Queryer, tenantID string, in PartyInput) (*model.Dealer, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ts := now()
	d := &model.Dealer{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      in.Name,
		Phone:     in.Phone,
		Email:     in.Email,
		Notes:     in.Notes,
		Status:    in.Status,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	_, err := exec(ctx, db,
		`INSERT INTO dealers (id, tenant_id, name, phone, email, notes, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.Name, d.Phone, d.Email, d.Notes, d.Status, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return nil, model.Persistence("creating dealer", err)
	}
	return d, nil
}

// GetDealer returns a dealer of the tenant.
func GetDealer(ctx context.Context, db Queryer, tenantID, id string) (*model.Dealer, error) {
	var d model.Dealer
	err := get(ctx, db, &d,
		`SELECT `+dealerColumns+` FROM dealers WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if isNoRows(err) {
		return nil, model.NotFound("dealer", id)
	}
	if err != nil {
		return nil, model.Persistence("getting dealer", err)
	}
	return &d, nil
}

// ListDealers returns the tenant's dealers by name, optionally filtered by
// status.
func ListDealers(ctx context.Context, db Queryer, tenantID string, status model.PartyStatus) ([]model.Dealer, error) {
	query := `SELECT ` + dealerColumns + ` FROM dealers WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name, id`

	dealers := []model.Dealer{}
	if err := sel(ctx, db, &dealers, query, args...); err != nil {
		return nil, model.Persistence("listing dealers", err)
	}
	return dealers, nil
}

// UpdateDealer replaces a dealer's editable fields.
func UpdateDealer(ctx context.Context, db Queryer, tenantID, id string, in PartyInput) (*model.Dealer, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	n, err := exec(ctx, db,
		`UPDATE dealers SET name = ?, phone = ?, email = ?, notes = ?, status = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		in.Name, in.Phone, in.Email, in.Notes, in.Status, now(), tenantID, id,
	)
	if err != nil {
		return nil, model.Persistence("updating dealer", err)
	}
	if n == 0 {
		return nil, model.NotFound("dealer", id)
	}
	return GetDealer(ctx, db, tenantID, id)
}
