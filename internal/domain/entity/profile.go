package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/rbac"
)

// Profile holds the pay attributes read when an overtime request is approved
type Profile struct {
	SubjectID   string          `json:"subject_id"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	Designation string          `json:"designation"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RoleAssignment is the stored role set of a subject
type RoleAssignment struct {
	SubjectID string       `json:"subject_id"`
	Roles     rbac.RoleSet `json:"-"`
	UpdatedBy string       `json:"updated_by"`
	UpdatedAt time.Time    `json:"updated_at"`
}
