package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateKind identifies what a RateConfig prices
type RateKind string

const (
	RateKindMileage            RateKind = "mileage"
	RateKindOvertimeMultiplier RateKind = "overtime_multiplier"
)

// IsValid returns true for a known rate kind
func (k RateKind) IsValid() bool {
	return k == RateKindMileage || k == RateKindOvertimeMultiplier
}

// RateCondition keys an overtime multiplier
type RateCondition struct {
	DayType     DayType `json:"day_type"`
	Designation string  `json:"designation"`
}

// Matches reports an exact match on both attributes
func (c *RateCondition) Matches(dayType DayType, designation string) bool {
	return c != nil && c.DayType == dayType && c.Designation == designation
}

// RateConfig is an append-only, effective-dated rate entry
type RateConfig struct {
	ID            int64           `json:"id"`
	Kind          RateKind        `json:"kind"`
	Value         decimal.Decimal `json:"value"`
	Condition     *RateCondition  `json:"condition,omitempty"`
	EffectiveDate time.Time       `json:"effective_date"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}
