package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestSubmitted      Type = "request.submitted"
	TypeRequestAutoApproved   Type = "request.auto_approved"
	TypeLevelApproved         Type = "level.approved"
	TypeLevelRejected         Type = "level.rejected"
	TypePaymentCompleted      Type = "payment.completed"
	TypePayrollActionRequired Type = "payroll.action_required"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestSubmitted,
		TypeRequestAutoApproved,
		TypeLevelApproved,
		TypeLevelRejected,
		TypePaymentCompleted,
		TypePayrollActionRequired:
		return true
	default:
		return false
	}
}
