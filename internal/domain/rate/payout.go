package rate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// MoneyPlaces is the number of decimal places a payout is rounded to
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// OvertimePay computes hours × hourlyRate × multiplier, rounded once at the end
func OvertimePay(hours, hourlyRate, multiplier decimal.Decimal) decimal.Decimal {
	return RoundMoney(hours.Mul(hourlyRate).Mul(multiplier))
}

// ClaimTotal computes mileage × rate plus the itemized expenses, rounded once at the end
func ClaimTotal(mileage, mileageRate decimal.Decimal, items []entity.ExpenseItem) decimal.Decimal {
	total := mileage.Mul(mileageRate)
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return RoundMoney(total)
}

// SnapshotSource supplies the full RateConfig set as of now
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]entity.RateConfig, error)
}

// ProfileSource supplies the current pay profile of a subject. A missing
// profile is reported as (nil, nil).
type ProfileSource interface {
	GetProfile(ctx context.Context, subjectID string) (*entity.Profile, error)
}

// Quote is a computed payout and the inputs it was derived from
type Quote struct {
	Total        decimal.Decimal
	RateConfigID int64
	Rate         decimal.Decimal
	Mileage      decimal.Decimal
	Hours        decimal.Decimal
	HourlyRate   decimal.Decimal
	Designation  string
}

// Details renders the quote for an audit entry
func (q *Quote) Details() map[string]interface{} {
	d := map[string]interface{}{
		"total":          q.Total.StringFixed(MoneyPlaces),
		"rate":           q.Rate.String(),
		"rate_config_id": q.RateConfigID,
	}
	if !q.Hours.IsZero() {
		d["hours"] = q.Hours.String()
		d["hourly_rate"] = q.HourlyRate.String()
		d["designation"] = q.Designation
	}
	if !q.Mileage.IsZero() {
		d["mileage"] = q.Mileage.String()
	}
	return d
}

// Calculator prices submissions at decision time
type Calculator struct {
	rates    SnapshotSource
	profiles ProfileSource
}

// NewCalculator creates a payout calculator
func NewCalculator(rates SnapshotSource, profiles ProfileSource) *Calculator {
	return &Calculator{rates: rates, profiles: profiles}
}

// Quote computes the payout of a submission. A missing rate or pay profile
// is reported as ErrNotConfigured, never as a zero amount.
func (c *Calculator) Quote(ctx context.Context, sub *entity.Submission) (*Quote, error) {
	snapshot, err := c.rates.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate snapshot: %w", err)
	}
	resolver := NewResolver(snapshot)

	switch sub.Kind {
	case entity.KindClaim:
		return c.quoteClaim(sub, resolver)
	case entity.KindOvertime:
		return c.quoteOvertime(ctx, sub, resolver)
	default:
		return nil, fmt.Errorf("%w: unknown submission kind %q", apperr.ErrValidationFailed, sub.Kind)
	}
}

func (c *Calculator) quoteClaim(sub *entity.Submission, resolver *Resolver) (*Quote, error) {
	if sub.Claim == nil {
		return nil, fmt.Errorf("%w: claim %s has no details", apperr.ErrValidationFailed, sub.ID)
	}

	q := &Quote{Mileage: sub.Claim.CalculatedMileage, Rate: decimal.Zero}
	if sub.Claim.CalculatedMileage.IsPositive() {
		cfg, err := resolver.Resolve(entity.RateKindMileage, sub.ReferenceDate(), nil)
		if err != nil {
			return nil, err
		}
		q.Rate = cfg.Value
		q.RateConfigID = cfg.ID
	}

	q.Total = ClaimTotal(q.Mileage, q.Rate, sub.Claim.Items)
	return q, nil
}

func (c *Calculator) quoteOvertime(ctx context.Context, sub *entity.Submission, resolver *Resolver) (*Quote, error) {
	if sub.Overtime == nil {
		return nil, fmt.Errorf("%w: overtime %s has no details", apperr.ErrValidationFailed, sub.ID)
	}

	profile, err := c.profiles.GetProfile(ctx, sub.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load pay profile: %w", err)
	}
	if profile == nil || !profile.HourlyRate.IsPositive() || profile.Designation == "" {
		return nil, fmt.Errorf("%w: no pay profile for %s", apperr.ErrNotConfigured, sub.OwnerID)
	}

	cfg, err := resolver.Resolve(entity.RateKindOvertimeMultiplier, sub.ReferenceDate(), &entity.RateCondition{
		DayType:     sub.Overtime.DayType,
		Designation: profile.Designation,
	})
	if err != nil {
		return nil, err
	}

	hours := sub.Overtime.Hours()
	return &Quote{
		Total:        OvertimePay(hours, profile.HourlyRate, cfg.Value),
		RateConfigID: cfg.ID,
		Rate:         cfg.Value,
		Hours:        hours,
		HourlyRate:   profile.HourlyRate,
		Designation:  profile.Designation,
	}, nil
}
