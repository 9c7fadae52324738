package workflow

import "context"

// StateMachine tracks the current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has a transition out of the current state
	CanFire(trigger Trigger) bool

	// Target returns the state the trigger leads to from the current state
	Target(trigger Trigger) (State, bool)

	// Fire evaluates guards, runs the transition effect and moves to the target state
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
