package service

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// maxOvertimeSpan bounds a single overtime request
const maxOvertimeSpan = 24 * time.Hour

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names in errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Compare decimals as numbers so gt/gte tags apply
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// validateInput runs struct validation and maps failures to ErrValidationFailed
func validateInput(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperr.ErrValidationFailed, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", apperr.ErrValidationFailed, strings.Join(msgs, "; "))
}

// ClaimInput is the payload for a new expense claim
type ClaimInput struct {
	ClaimDate         time.Time          `json:"claim_date" validate:"required"`
	Description       string             `json:"description" validate:"max=500"`
	CalculatedMileage decimal.Decimal    `json:"calculated_mileage" validate:"gte=0"`
	Items             []ExpenseItemInput `json:"items" validate:"max=50,dive"`
}

// ExpenseItemInput is one itemized line of a claim
type ExpenseItemInput struct {
	Category    entity.ExpenseCategory `json:"category" validate:"required,oneof=toll parking meal accommodation transport other"`
	Description string                 `json:"description" validate:"max=200"`
	Amount      decimal.Decimal        `json:"amount" validate:"gt=0"`
}

// OvertimeInput is the payload for a new overtime request
type OvertimeInput struct {
	StartTime time.Time      `json:"start_time" validate:"required"`
	EndTime   time.Time      `json:"end_time" validate:"required,gtfield=StartTime"`
	Reason    string         `json:"reason" validate:"required,max=500"`
	DayType   entity.DayType `json:"day_type" validate:"required,oneof=weekday weekend public_holiday"`
}

// RateInput is the payload for a new RateConfig entry
type RateInput struct {
	Kind          entity.RateKind     `json:"kind" validate:"required,oneof=mileage overtime_multiplier"`
	Value         decimal.Decimal     `json:"value" validate:"gt=0"`
	Condition     *RateConditionInput `json:"condition" validate:"required_if=Kind overtime_multiplier,excluded_if=Kind mileage"`
	EffectiveDate time.Time           `json:"effective_date" validate:"required"`
}

// RateConditionInput keys an overtime multiplier
type RateConditionInput struct {
	DayType     entity.DayType `json:"day_type" validate:"required,oneof=weekday weekend public_holiday"`
	Designation string         `json:"designation" validate:"required,max=100"`
}

// ProfileInput is the payload for a pay profile update
type ProfileInput struct {
	HourlyRate  decimal.Decimal `json:"hourly_rate" validate:"gt=0"`
	Designation string          `json:"designation" validate:"required,max=100"`
}

// Validate checks the claim payload
func (in ClaimInput) Validate() error {
	return validateInput(in)
}

// Validate checks the overtime payload, including the maximum span
func (in OvertimeInput) Validate() error {
	if err := validateInput(in); err != nil {
		return err
	}
	if in.EndTime.Sub(in.StartTime) > maxOvertimeSpan {
		return fmt.Errorf("%w: overtime may not exceed %s", apperr.ErrValidationFailed, maxOvertimeSpan)
	}
	return nil
}

// Validate checks the rate payload
func (in RateInput) Validate() error {
	return validateInput(in)
}

// Validate checks the profile payload
func (in ProfileInput) Validate() error {
	return validateInput(in)
}

// dateOnly returns midnight UTC of the calendar day t falls on in its own location
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
