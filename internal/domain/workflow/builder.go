package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects transition rules and builds machines from them
type StateMachineBuilder interface {
	// Configure returns a handle for adding rules that leave state
	Configure(state State) StateConfiguration

	// Build freezes the current rules into a machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration adds rules for one source state
type StateConfiguration interface {
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf adds a guarded rule. Rules for the same trigger are tried in the order added.
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

// edge identifies the rules fired by trigger while in state from
type edge struct {
	from    State
	trigger Trigger
}

type rule struct {
	to    State
	guard GuardFunc
}

type ruleTable map[edge][]rule

func (rt ruleTable) clone() ruleTable {
	out := make(ruleTable, len(rt))
	for e, rules := range rt {
		out[e] = append([]rule(nil), rules...)
	}
	return out
}

type stateMachineBuilder struct {
	rules ruleTable
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{rules: make(ruleTable)}
}

type stateConfig struct {
	from  State
	rules ruleTable
}

// Configure panics on states outside the known vocabulary
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	mustBeValid("source", state)
	return &stateConfig{from: state, rules: b.rules}
}

// Build copies the rule table, so rules added afterwards do not reach the machine
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	mustBeValid("initial", initialState)
	return &stateMachine{current: initialState, rules: b.rules.clone()}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	mustBeValid("target", toState)
	key := edge{from: c.from, trigger: trigger}
	c.rules[key] = append(c.rules[key], rule{to: toState, guard: guard})
	return c
}

func mustBeValid(role string, s State) {
	if !s.IsValid() {
		panic(fmt.Sprintf("workflow: %s state %q is not a known state", role, s))
	}
}

type stateMachine struct {
	current State
	rules   ruleTable
}

func (m *stateMachine) State() State {
	return m.current
}

// CanFire ignores guards
func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.rules[edge{from: m.current, trigger: trigger}]) > 0
}

// Fire moves to the target of the first rule whose guard passes
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	rules := m.rules[edge{from: m.current, trigger: trigger}]
	if len(rules) == 0 {
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, trigger, m.current)
	}
	for _, r := range rules {
		if r.guard != nil && !r.guard(ctx) {
			continue
		}
		m.current = r.to
		return nil
	}
	return fmt.Errorf("%w: %s while %s", ErrGuardFailed, trigger, m.current)
}

// PermittedTriggers lists triggers with at least one rule from the current state, sorted
func (m *stateMachine) PermittedTriggers() []Trigger {
	triggers := []Trigger{}
	for e := range m.rules {
		if e.from == m.current {
			triggers = append(triggers, e.trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
