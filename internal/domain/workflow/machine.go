package workflow

import "context"

// StateMachine tracks the current state of one request or level record and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}

// Next fires trigger on machine and returns the resulting state
func Next(ctx context.Context, machine StateMachine, trigger Trigger) (State, error) {
	if err := machine.Fire(ctx, trigger); err != nil {
		return machine.State(), err
	}
	return machine.State(), nil
}
