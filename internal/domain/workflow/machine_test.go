package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateDraft, false},
		{StateSubmitted, false},
		{StateInProgress, false},
		{StateApproved, false},
		{StatePending, false},
		{StateRejected, true},
		{StateCompleted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"request state", StateDraft, true},
		{"level state", StatePending, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrigger_String(t *testing.T) {
	if got := TriggerCompletePayment.String(); got != "COMPLETE_PAYMENT" {
		t.Errorf("Trigger.String() = %v, want %v", got, "COMPLETE_PAYMENT")
	}
}

func TestBuilder_PanicsOnInvalidState(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Configure() with invalid state should panic")
		}
	}()
	NewBuilder().Configure(State("bogus"))
}

func TestBuilder_BuildIsolatesConfiguration(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)
	machine := builder.Build(StateDraft)

	builder.Configure(StateDraft).Permit(TriggerReject, StateRejected)

	if machine.CanFire(TriggerReject) {
		t.Error("machine should not see configuration added after Build()")
	}
}

func TestStateMachine_PermitIf(t *testing.T) {
	ctx := context.Background()
	allowed := false

	builder := NewBuilder()
	builder.Configure(StateDraft).
		PermitIf(TriggerSubmit, StateSubmitted, func(context.Context) bool { return allowed })

	machine := builder.Build(StateDraft)
	err := machine.Fire(ctx, TriggerSubmit)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want ErrGuardFailed", err)
	}
	if machine.State() != StateDraft {
		t.Errorf("State() = %v, want %v", machine.State(), StateDraft)
	}

	allowed = true
	if err := machine.Fire(ctx, TriggerSubmit); err != nil {
		t.Fatalf("Fire() unexpected error: %v", err)
	}
	if machine.State() != StateSubmitted {
		t.Errorf("State() = %v, want %v", machine.State(), StateSubmitted)
	}
}

func TestRequestMachine_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{"submit draft", StateDraft, TriggerSubmit, StateSubmitted, false},
		{"advance submitted", StateSubmitted, TriggerAdvance, StateInProgress, false},
		{"advance in progress", StateInProgress, TriggerAdvance, StateInProgress, false},
		{"chain approved from submitted", StateSubmitted, TriggerApproveChain, StateApproved, false},
		{"chain approved from in progress", StateInProgress, TriggerApproveChain, StateApproved, false},
		{"reject in progress", StateInProgress, TriggerReject, StateRejected, false},
		{"payroll approval", StateApproved, TriggerApprovePayroll, StateApproved, false},
		{"payroll rejection", StateApproved, TriggerReject, StateRejected, false},
		{"payment completion", StateApproved, TriggerCompletePayment, StateCompleted, false},
		{"resubmit rejected", StateRejected, TriggerSubmit, StateRejected, true},
		{"advance rejected", StateRejected, TriggerAdvance, StateRejected, true},
		{"reject completed", StateCompleted, TriggerReject, StateCompleted, true},
		{"complete before approval", StateInProgress, TriggerCompletePayment, StateInProgress, true},
		{"submit twice", StateSubmitted, TriggerSubmit, StateSubmitted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(context.Background(), BuildRequestMachine(tt.from), tt.trigger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Next() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Next() error = %v, want ErrInvalidTransition", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelMachine_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		level   int
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{"approve pending", 1, StatePending, TriggerApprove, StateApproved, false},
		{"reject pending", 2, StatePending, TriggerReject, StateRejected, false},
		{"approve twice", 1, StateApproved, TriggerApprove, StateApproved, true},
		{"reject approved", 3, StateApproved, TriggerReject, StateApproved, true},
		{"approve rejected", 2, StateRejected, TriggerApprove, StateRejected, true},
		{"complete payroll", 4, StateApproved, TriggerCompletePayment, StateCompleted, false},
		{"complete pending payroll", 4, StatePending, TriggerCompletePayment, StatePending, true},
		{"complete approver level", 3, StateApproved, TriggerCompletePayment, StateApproved, true},
		{"complete twice", 4, StateCompleted, TriggerCompletePayment, StateCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(context.Background(), BuildLevelMachine(tt.level, tt.from), tt.trigger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Next() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateMachine_PermittedTriggers(t *testing.T) {
	machine := BuildRequestMachine(StateApproved)
	triggers := machine.PermittedTriggers()

	want := []Trigger{TriggerApprovePayroll, TriggerCompletePayment, TriggerReject}
	if len(triggers) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", triggers, want)
	}
	for i := range want {
		if triggers[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %v, want %v", i, triggers[i], want[i])
		}
	}

	if got := BuildRequestMachine(StateCompleted).PermittedTriggers(); len(got) != 0 {
		t.Errorf("terminal PermittedTriggers() = %v, want none", got)
	}
}
