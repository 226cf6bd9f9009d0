package workflow

// Trigger represents an action that can cause a state transition
type Trigger string

const (
	// TriggerSubmit moves a draft request into the approval chain
	TriggerSubmit Trigger = "SUBMIT"
	// TriggerAdvance records progress on an approver level without finishing the chain
	TriggerAdvance Trigger = "ADVANCE"
	// TriggerApproveChain fires when every approver level is approved
	TriggerApproveChain Trigger = "APPROVE_CHAIN"
	// TriggerApprovePayroll records the payroll level approval on an approved request
	TriggerApprovePayroll Trigger = "APPROVE_PAYROLL"
	// TriggerApprove decides a single level record
	TriggerApprove Trigger = "APPROVE"
	// TriggerReject kills a level record or the whole request
	TriggerReject Trigger = "REJECT"
	// TriggerCompletePayment closes the payroll level and the request
	TriggerCompletePayment Trigger = "COMPLETE_PAYMENT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
