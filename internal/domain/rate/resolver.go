// Package rate resolves effective-dated rates and computes payouts.
package rate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Resolver selects rates from one consistent snapshot of RateConfig entries.
type Resolver struct {
	entries []entity.RateConfig
}

// NewResolver creates a resolver over a snapshot. The slice is copied.
func NewResolver(snapshot []entity.RateConfig) *Resolver {
	return &Resolver{entries: append([]entity.RateConfig(nil), snapshot...)}
}

// Resolve returns the entry of the given kind with the latest effective date
// not after ref. Overtime multipliers also need an exact condition match.
// Ties on effective date go to the most recently created entry.
func (r *Resolver) Resolve(kind entity.RateKind, ref time.Time, cond *entity.RateCondition) (*entity.RateConfig, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown rate kind %q", apperr.ErrValidationFailed, kind)
	}
	if kind == entity.RateKindOvertimeMultiplier && (cond == nil || !cond.DayType.IsValid() || cond.Designation == "") {
		return nil, fmt.Errorf("%w: overtime multiplier needs a day type and designation", apperr.ErrValidationFailed)
	}

	var best *entity.RateConfig
	for i := range r.entries {
		e := &r.entries[i]
		if e.Kind != kind || e.EffectiveDate.After(ref) {
			continue
		}
		if kind == entity.RateKindOvertimeMultiplier && !e.Condition.Matches(cond.DayType, cond.Designation) {
			continue
		}
		if best == nil || newer(e, best) {
			best = e
		}
	}

	if best == nil {
		return nil, notConfigured(kind, ref, cond)
	}
	found := *best
	return &found, nil
}

// MileageRate returns the rate per distance unit in effect on ref
func (r *Resolver) MileageRate(ref time.Time) (decimal.Decimal, error) {
	e, err := r.Resolve(entity.RateKindMileage, ref, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return e.Value, nil
}

// OvertimeMultiplier returns the multiplier in effect on ref for the day type and designation
func (r *Resolver) OvertimeMultiplier(ref time.Time, dayType entity.DayType, designation string) (decimal.Decimal, error) {
	e, err := r.Resolve(entity.RateKindOvertimeMultiplier, ref, &entity.RateCondition{
		DayType:     dayType,
		Designation: designation,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return e.Value, nil
}

func newer(a, b *entity.RateConfig) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.After(b.EffectiveDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func notConfigured(kind entity.RateKind, ref time.Time, cond *entity.RateCondition) error {
	if cond != nil && kind == entity.RateKindOvertimeMultiplier {
		return fmt.Errorf("%w: no %s rate for %s/%s effective on %s",
			apperr.ErrNotConfigured, kind, cond.DayType, cond.Designation, ref.Format(time.DateOnly))
	}
	return fmt.Errorf("%w: no %s rate effective on %s", apperr.ErrNotConfigured, kind, ref.Format(time.DateOnly))
}
