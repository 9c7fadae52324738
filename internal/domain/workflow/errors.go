package workflow

import (
	"errors"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = apperr.ErrInvalidTransition

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard rejects a transition. The
	// guard's own error is wrapped alongside it.
	ErrGuardFailed = errors.New("guard condition failed")
)
