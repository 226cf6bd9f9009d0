package workflow

import "github.com/garyjia/budget-approval/internal/domain/entity"

// BuildRequestMachine creates the overall-status machine for an approval request.
// Rejected and completed are terminal; there is no path back to draft.
func BuildRequestMachine(initialState State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	builder.Configure(StateSubmitted).
		Permit(TriggerAdvance, StateInProgress).
		Permit(TriggerApproveChain, StateApproved).
		Permit(TriggerReject, StateRejected)

	builder.Configure(StateInProgress).
		Permit(TriggerAdvance, StateInProgress).
		Permit(TriggerApproveChain, StateApproved).
		Permit(TriggerReject, StateRejected)

	// Payroll decisions happen after the approver chain is done
	builder.Configure(StateApproved).
		Permit(TriggerApprovePayroll, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCompletePayment, StateCompleted)

	return builder.Build(initialState)
}

// BuildLevelMachine creates the machine for one approval level record.
// Only the payroll level may move from approved to completed.
func BuildLevelMachine(level int, initialState State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	if level == entity.LevelPayroll {
		builder.Configure(StateApproved).
			Permit(TriggerCompletePayment, StateCompleted)
	}

	return builder.Build(initialState)
}
