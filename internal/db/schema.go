package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sqliteSchema stores decimals as TEXT so values round-trip exactly.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    tenant_id     TEXT NOT NULL REFERENCES tenants(id),
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL,
    deleted_at    DATETIME
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_tenant_username_active
    ON users(tenant_id, username) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS inventory (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL REFERENCES tenants(id),
    item_type           TEXT NOT NULL CHECK (item_type IN ('gold', 'silver', 'platinum', 'diamonds', 'gemstones')),
    quantity            TEXT NOT NULL,
    unit                TEXT NOT NULL CHECK (unit IN ('grams', 'ounces', 'kilograms', 'carats', 'pieces')),
    description         TEXT NOT NULL DEFAULT '',
    location            TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    low_stock_threshold TEXT,
    image               BLOB,
    image_mime          TEXT,
    version             INTEGER NOT NULL DEFAULT 1,
    created_at          DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_tenant_created
    ON inventory(tenant_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS dealers (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL REFERENCES tenants(id),
    name       TEXT NOT NULL,
    phone      TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    notes      TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_dealers_tenant ON dealers(tenant_id, name)`,
	`CREATE TABLE IF NOT EXISTS employees (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL REFERENCES tenants(id),
    name       TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    notes      TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_tenant ON employees(tenant_id, name)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL REFERENCES tenants(id),
    inventory_id     TEXT NOT NULL REFERENCES inventory(id),
    transaction_type TEXT NOT NULL CHECK (transaction_type IN ('deposit', 'withdraw', 'transfer')),
    quantity         TEXT NOT NULL,
    balance_before   TEXT NOT NULL,
    balance_after    TEXT NOT NULL,
    dealer_id        TEXT REFERENCES dealers(id),
    employee_id      TEXT REFERENCES employees(id),
    description      TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    transaction_date DATE NOT NULL,
    created_by       TEXT REFERENCES users(id),
    idempotency_key  TEXT,
    created_at       DATETIME NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_inventory_transactions_idempotency
    ON inventory_transactions(tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_tenant_created
    ON inventory_transactions(tenant_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_inventory
    ON inventory_transactions(inventory_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    tenant_id     TEXT NOT NULL REFERENCES tenants(id),
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    TIMESTAMPTZ NOT NULL,
    deleted_at    TIMESTAMPTZ
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_tenant_username_active
    ON users(tenant_id, username) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS inventory (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL REFERENCES tenants(id),
    item_type           TEXT NOT NULL CHECK (item_type IN ('gold', 'silver', 'platinum', 'diamonds', 'gemstones')),
    quantity            NUMERIC(18,4) NOT NULL CHECK (quantity >= 0),
    unit                TEXT NOT NULL CHECK (unit IN ('grams', 'ounces', 'kilograms', 'carats', 'pieces')),
    description         TEXT NOT NULL DEFAULT '',
    location            TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    low_stock_threshold NUMERIC(18,4),
    image               BYTEA,
    image_mime          TEXT,
    version             BIGINT NOT NULL DEFAULT 1,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_tenant_created
    ON inventory(tenant_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS dealers (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL REFERENCES tenants(id),
    name       TEXT NOT NULL,
    phone      TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    notes      TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_dealers_tenant ON dealers(tenant_id, name)`,
	`CREATE TABLE IF NOT EXISTS employees (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL REFERENCES tenants(id),
    name       TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    notes      TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_tenant ON employees(tenant_id, name)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL REFERENCES tenants(id),
    inventory_id     TEXT NOT NULL REFERENCES inventory(id),
    transaction_type TEXT NOT NULL CHECK (transaction_type IN ('deposit', 'withdraw', 'transfer')),
    quantity         NUMERIC(18,4) NOT NULL CHECK (quantity > 0),
    balance_before   NUMERIC(18,4) NOT NULL,
    balance_after    NUMERIC(18,4) NOT NULL CHECK (balance_after >= 0),
    dealer_id        TEXT REFERENCES dealers(id),
    employee_id      TEXT REFERENCES employees(id),
    description      TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    transaction_date DATE NOT NULL,
    created_by       TEXT REFERENCES users(id),
    idempotency_key  TEXT,
    created_at       TIMESTAMPTZ NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_inventory_transactions_idempotency
    ON inventory_transactions(tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_tenant_created
    ON inventory_transactions(tenant_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_inventory
    ON inventory_transactions(inventory_id)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sqlx.DB) error {
	statements := postgresSchema
	if IsSQLite(db) {
		statements = sqliteSchema
	}

	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema (statement %d): %w", i+1, err)
		}
	}
	return nil
}
