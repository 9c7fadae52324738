package event

// Type identifies the type of domain event
type Type string

const (
	TypeSubmissionCreated Type = "submission.created"
	TypeStatusChanged     Type = "submission.status_changed"
	TypeRateCreated       Type = "rate.created"
	TypeRolesChanged      Type = "roles.changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSubmissionCreated,
		TypeStatusChanged,
		TypeRateCreated,
		TypeRolesChanged:
		return true
	default:
		return false
	}
}
