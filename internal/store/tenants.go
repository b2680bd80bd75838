package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/karat/internal/model"
)

// CreateTenant creates a new tenant. Names are unique.
func CreateTenant(ctx context.Context, db Queryer, name string) (*model.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.Invalid("name", "is required")
	}

	t := &model.Tenant{ID: uuid.NewString(), Name: name, CreatedAt: now()}
	_, err := exec(ctx, db,
		`INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)`,
		t.ID, t.Name, t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, model.Invalid("name", "tenant already exists")
	}
	if err != nil {
		return nil, model.Persistence("creating tenant", err)
	}
	return t, nil
}

// GetTenantByName looks a tenant up by its unique name.
func GetTenantByName(ctx context.Context, db Queryer, name string) (*model.Tenant, error) {
	var t model.Tenant
	err := get(ctx, db, &t,
		`SELECT id, name, created_at FROM tenants WHERE name = ?`, name)
	if isNoRows(err) {
		return nil, model.NotFound("tenant", name)
	}
	if err != nil {
		return nil, model.Persistence("getting tenant", err)
	}
	return &t, nil
}

// GetTenant returns a tenant by ID.
func GetTenant(ctx context.Context, db Queryer, id string) (*model.Tenant, error) {
	var t model.Tenant
	err := get(ctx, db, &t,
		`SELECT id, name, created_at FROM tenants WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, model.NotFound("tenant", id)
	}
	if err != nil {
		return nil, model.Persistence("getting tenant", err)
	}
	return &t, nil
}
