package entity

// Overall status values for ApprovalRequest
const (
	RequestStatusDraft      = "draft"
	RequestStatusSubmitted  = "submitted"
	RequestStatusInProgress = "in_progress"
	RequestStatusApproved   = "approved"
	RequestStatusRejected   = "rejected"
	RequestStatusCompleted  = "completed"
)

// Status values for ApprovalLevelRecord. LevelStatusCompleted is only reachable on the payroll level.
const (
	LevelStatusPending   = "pending"
	LevelStatusApproved  = "approved"
	LevelStatusRejected  = "rejected"
	LevelStatusCompleted = "completed"
)

// Approval levels. Levels 1-3 are configured per budget, level 4 is the fixed payroll step.
const (
	LevelOne     = 1
	LevelTwo     = 2
	LevelThree   = 3
	LevelPayroll = 4

	MaxApproverLevel = LevelThree
)

// Budget configuration status values
const (
	BudgetStatusActive      = "active"
	BudgetStatusDeactivated = "deactivated"
	BudgetStatusExpired     = "expired"
)

// Notification type values
const (
	NotificationTypeSubmitted             = "submitted"
	NotificationTypeApproved              = "approved"
	NotificationTypeRejected              = "rejected"
	NotificationTypePayrollActionRequired = "payroll_action_required"
	NotificationTypeCompleted             = "completed"
)

// Line item types. Anything outside this vocabulary normalizes to ItemTypeBonus.
const (
	ItemTypeBonus         = "bonus"
	ItemTypeIncentive     = "incentive"
	ItemTypeAllowance     = "allowance"
	ItemTypeOvertime      = "overtime"
	ItemTypeCommission    = "commission"
	ItemTypeReimbursement = "reimbursement"
	ItemTypeAdjustment    = "adjustment"
	ItemTypeDeduction     = "deduction"
)

// Activity log actions
const (
	ActivityRequestCreated   = "REQUEST_CREATED"
	ActivityItemsAdded       = "LINE_ITEMS_ADDED"
	ActivityRequestSubmitted = "REQUEST_SUBMITTED"
	ActivityAutoApproved     = "AUTO_APPROVED"
	ActivityLevelApproved    = "LEVEL_APPROVED"
	ActivityLevelRejected    = "LEVEL_REJECTED"
	ActivityPaymentCompleted = "PAYMENT_COMPLETED"
)

// Actor labels used by the auto-approval path
const (
	SelfApproverName      = "Self"
	SelfApprovalNotes     = "Auto-approved: Self-request by L1 approver"
	DefaultCurrency       = "USD"
	DefaultPayCycle       = "monthly"
	RequestNumberPrefix   = "REQ"
	PayrollLevelName      = "Payroll"
	DefaultPayrollKeyword = "payroll"
)
