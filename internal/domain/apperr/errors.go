// Package apperr defines the error taxonomy shared by every layer of the
// approval core. Callers wrap these sentinels with fmt.Errorf("...: %w")
// and inspect them with errors.Is or KindOf.
package apperr

import "errors"

var (
	// ErrUnauthenticated is returned when no principal accompanies a request
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when the principal lacks the required role or permission
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the target entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status change is not in the transition table
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidationFailed is returned when input fails validation
	ErrValidationFailed = errors.New("validation failed")

	// ErrNotConfigured is returned when no rate configuration applies
	ErrNotConfigured = errors.New("not configured")

	// ErrConflict is returned when a write loses an optimistic concurrency race
	// or replays a transition that was already applied
	ErrConflict = errors.New("conflict")
)

// Kind classifies an error by the taxonomy sentinel it wraps.
type Kind string

const (
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidationFailed  Kind = "validation_failed"
	KindNotConfigured     Kind = "not_configured"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrForbidden, KindForbidden},
	{ErrNotFound, KindNotFound},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrValidationFailed, KindValidationFailed},
	{ErrNotConfigured, KindNotConfigured},
	{ErrConflict, KindConflict},
}

// KindOf returns the taxonomy kind of err, or KindInternal when err wraps
// none of the sentinels. A nil error has an empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}
