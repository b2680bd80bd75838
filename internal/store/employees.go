package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/erazemk/karat/internal/model"
)

const employeeColumns = `id, tenant_id, name, role, phone, email, notes, status, created_at, updated_at`

// CreateEmployee adds an employee to the tenant.
func CreateEmployee(ctx context.Context, db Queryer, tenantID string, in PartyInput) (*model.Employee, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ts := now()
	e := &model.Employee{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      in.Name,
		Role:      in.Role,
		Phone:     in.Phone,
		Email:     in.Email,
		Notes:     in.Notes,
		Status:    in.Status,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	_, err := exec(ctx, db,
		`INSERT INTO employees (id, tenant_id, name, role, phone, email, notes, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.Name, e.Role, e.Phone, e.Email, e.Notes, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return nil, model.Persistence("creating employee", err)
	}
	return e, nil
}

// GetEmployee returns an employee of the tenant.
func GetEmployee(ctx context.Context, db Queryer, tenantID, id string) (*model.Employee, error) {
	var e model.Employee
	err := get(ctx, db, &e,
		`SELECT `+employeeColumns+` FROM employees WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if isNoRows(err) {
		return nil, model.NotFound("employee", id)
	}
	if err != nil {
		return nil, model.Persistence("getting employee", err)
	}
	return &e, nil
}

// ListEmployees returns the tenant's employees by name, optionally filtered
// by status.
func ListEmployees(ctx context.Context, db Queryer, tenantID string, status model.PartyStatus) ([]model.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name, id`

	employees := []model.Employee{}
	if err := sel(ctx, db, &employees, query, args...); err != nil {
		return nil, model.Persistence("listing employees", err)
	}
	return employees, nil
}

// UpdateEmployee replaces an employee's editable fields.
func UpdateEmployee(ctx context.Context, db Queryer, tenantID, id string, in PartyInput) (*model.Employee, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	n, err := exec(ctx, db,
		`UPDATE employees SET name = ?, role = ?, phone = ?, email = ?, notes = ?, status = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		in.Name, in.Role, in.Phone, in.Email, in.Notes, in.Status, now(), tenantID, id,
	)
	if err != nil {
		return nil, model.Persistence("updating employee", err)
	}
	if n == 0 {
		return nil, model.NotFound("employee", id)
	}
	return GetEmployee(ctx, db, tenantID, id)
}
