package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/karat/internal/model"
)

const userColumns = `id, tenant_id, username, password_hash, role, created_at, deleted_at`

// CreateUser creates a new user within a tenant.
func CreateUser(ctx context.Context, db Queryer, tenantID, username, passwordHash, role string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, model.Invalid("username", "is required")
	}
	if !model.ValidRole(role) {
		return nil, model.Invalid("role", "must be admin, manager, or user")
	}

	u := &model.User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now(),
	}
	_, err := exec(ctx, db,
		`INSERT INTO users (id, tenant_id, username, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Username, u.PasswordHash, u.Role, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, model.Invalid("username", "already exists")
	}
	if err != nil {
		return nil, model.Persistence("creating user", err)
	}
	return u, nil
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, db Queryer, tenantID, id string) (*model.User, error) {
	var u model.User
	err := get(ctx, db, &u,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if isNoRows(err) {
		return nil, model.NotFound("user", id)
	}
	if err != nil {
		return nil, model.Persistence("getting user", err)
	}
	return &u, nil
}

// GetUserForLogin resolves tenant name and username to an active user.
func GetUserForLogin(ctx context.Context, db Queryer, tenantName, username string) (*model.User, error) {
	var u model.User
	err := get(ctx, db, &u,
		`SELECT u.id, u.tenant_id, u.username, u.password_hash, u.role, u.created_at, u.deleted_at
		 FROM users u
		 JOIN tenants t ON t.id = u.tenant_id
		 WHERE t.name = ? AND u.username = ? AND u.deleted_at IS NULL`,
		tenantName, username)
	if isNoRows(err) {
		return nil, model.NotFound("user", username)
	}
	if err != nil {
		return nil, model.Persistence("getting user for login", err)
	}
	return &u, nil
}

// ListUsers returns all non-deleted users of a tenant.
func ListUsers(ctx context.Context, db Queryer, tenantID string) ([]model.User, error) {
	users := []model.User{}
	err := sel(ctx, db, &users,
		`SELECT `+userColumns+` FROM users
		 WHERE tenant_id = ? AND deleted_at IS NULL ORDER BY username`, tenantID)
	if err != nil {
		return nil, model.Persistence("listing users", err)
	}
	return users, nil
}

// UpdateUser updates a user's role.
func UpdateUser(ctx context.Context, db Queryer, tenantID, id, role string) error {
	if !model.ValidRole(role) {
		return model.Invalid("role", "must be admin, manager, or user")
	}
	n, err := exec(ctx, db,
		`UPDATE users SET role = ? WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL`,
		role, tenantID, id,
	)
	if err != nil {
		return model.Persistence("updating user", err)
	}
	if n == 0 {
		return model.NotFound("user", id)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db Queryer, tenantID, id, passwordHash string) error {
	n, err := exec(ctx, db,
		`UPDATE users SET password_hash = ? WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL`,
		passwordHash, tenantID, id,
	)
	if err != nil {
		return model.Persistence("updating user password", err)
	}
	if n == 0 {
		return model.NotFound("user", id)
	}
	return nil
}

// DeleteUser soft-deletes a user. The row stays so transactions keep
// their created_by reference.
func DeleteUser(ctx context.Context, db Queryer, tenantID, id string) error {
	n, err := exec(ctx, db,
		`UPDATE users SET deleted_at = ? WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL`,
		now(), tenantID, id,
	)
	if err != nil {
		return model.Persistence("deleting user", err)
	}
	if n == 0 {
		return model.NotFound("user", id)
	}
	return nil
}

// CountAdmins returns the number of active admins in a tenant.
func CountAdmins(ctx context.Context, db Queryer, tenantID string) (int, error) {
	var n int
	err := get(ctx, db, &n,
		`SELECT COUNT(*) FROM users WHERE tenant_id = ? AND role = ? AND deleted_at IS NULL`,
		tenantID, model.RoleAdmin)
	if err != nil {
		return 0, model.Persistence("counting admins", err)
	}
	return n, nil
}
