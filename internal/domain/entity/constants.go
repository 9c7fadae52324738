package entity

// Collection names used as audit targets
const (
	CollectionClaims      = "claims"
	CollectionOvertime    = "overtime"
	CollectionRateConfigs = "rate_configs"
	CollectionUserRoles   = "user_roles"
	CollectionProfiles    = "profiles"
	CollectionPayouts     = "payouts"
)

// ExpenseCategory classifies an itemized claim line
type ExpenseCategory string

const (
	CategoryToll          ExpenseCategory = "toll"
	CategoryParking       ExpenseCategory = "parking"
	CategoryMeal          ExpenseCategory = "meal"
	CategoryAccommodation ExpenseCategory = "accommodation"
	CategoryTransport     ExpenseCategory = "transport"
	CategoryOther         ExpenseCategory = "other"
)

// DayType classifies the calendar day overtime was worked on
type DayType string

const (
	DayTypeWeekday       DayType = "weekday"
	DayTypeWeekend       DayType = "weekend"
	DayTypePublicHoliday DayType = "public_holiday"
)

// IsValid returns true for a known day type
func (d DayType) IsValid() bool {
	switch d {
	case DayTypeWeekday, DayTypeWeekend, DayTypePublicHoliday:
		return true
	default:
		return false
	}
}
