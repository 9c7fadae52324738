package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a transition may proceed. A non-nil error
// rejects the transition and is surfaced to the caller.
type GuardFunc func(ctx context.Context) error

// EffectFunc runs once all guards pass, before the state changes. An error
// aborts the transition and leaves the machine in its current state.
type EffectFunc func(ctx context.Context) error

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition when every guard passes
	PermitIf(trigger Trigger, toState State, guards ...GuardFunc) StateConfiguration

	// OnTransition attaches an effect to an already permitted trigger
	OnTransition(trigger Trigger, effect EffectFunc) StateConfiguration
}

type transition struct {
	toState State
	guards  []GuardFunc
	effect  EffectFunc
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger]*transition
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger]*transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state.
// Later builder changes do not leak into machines already built.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	configsCopy := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger]*transition, len(config.transitions))
		for trigger, t := range config.transitions {
			transitionsCopy[trigger] = &transition{
				toState: t.toState,
				guards:  append([]GuardFunc{}, t.guards...),
				effect:  t.effect,
			}
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState)
}

// PermitIf allows a trigger to transition when every guard passes. Each
// trigger leads to exactly one target state; configuring it twice panics.
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guards ...GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if _, exists := c.transitions[trigger]; exists {
		panic(fmt.Sprintf("trigger %s already configured for state %s", trigger, c.fromState))
	}

	c.transitions[trigger] = &transition{
		toState: toState,
		guards:  guards,
	}

	return c
}

// OnTransition attaches an effect to an already permitted trigger
func (c *stateConfig) OnTransition(trigger Trigger, effect EffectFunc) StateConfiguration {
	t, exists := c.transitions[trigger]
	if !exists {
		panic(fmt.Sprintf("trigger %s not permitted from state %s", trigger, c.fromState))
	}
	t.effect = effect
	return c
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

func (m *stateMachine) lookup(trigger Trigger) (*transition, bool) {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return nil, false
	}
	t, exists := config.transitions[trigger]
	return t, exists
}

// CanFire returns true if the trigger is configured for the current state.
// Guards are not evaluated.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.lookup(trigger)
	return ok
}

// Target returns the state the trigger leads to from the current state
func (m *stateMachine) Target(trigger Trigger) (State, bool) {
	t, ok := m.lookup(trigger)
	if !ok {
		return "", false
	}
	return t.toState, true
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	t, ok := m.lookup(trigger)
	if !ok {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}

	for _, guard := range t.guards {
		if err := guard(ctx); err != nil {
			return fmt.Errorf("%w: trigger %s from state %s: %w", ErrGuardFailed, trigger, m.currentState, err)
		}
	}

	if t.effect != nil {
		if err := t.effect(ctx); err != nil {
			return err
		}
	}

	m.currentState = t.toState
	return nil
}

// PermittedTriggers returns all triggers configured for the current state, sorted
func (m *stateMachine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	return triggers
}
