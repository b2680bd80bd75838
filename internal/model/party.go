package model

import "time"

// PartyStatus marks whether a dealer or employee may be referenced by new
// transactions.
type PartyStatus string

// Party statuses.
const (
	StatusActive   PartyStatus = "active"
	StatusInactive PartyStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s PartyStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Dealer is an external trading partner that stock can be transferred to.
type Dealer struct {
	ID        string      `db:"id" json:"id"`
	TenantID  string      `db:"tenant_id" json:"-"`
	Name      string      `db:"name" json:"name"`
	Phone     string      `db:"phone" json:"phone"`
	Email     string      `db:"email" json:"email"`
	Notes     string      `db:"notes" json:"notes"`
	Status    PartyStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Employee is a staff member transactions can be attributed to.
type Employee struct {
	ID        string      `db:"id" json:"id"`
	TenantID  string      `db:"tenant_id" json:"-"`
	Name      string      `db:"name" json:"name"`
	Role      string      `db:"role" json:"role"`
	Phone     string      `db:"phone" json:"phone"`
	Email     string      `db:"email" json:"email"`
	Notes     string      `db:"notes" json:"notes"`
	Status    PartyStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
