package workflow

import "errors"

// Sentinels returned by StateMachine.Fire. Callers map them to transition errors.
var (
	ErrInvalidTransition = errors.New("transition not permitted")
	ErrGuardFailed       = errors.New("transition guard rejected")
)
