package port

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/budget-approval/internal/domain/entity"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")

	// ErrConflict is returned when a conditional update matched no row
	ErrConflict = errors.New("record was modified concurrently")
)

// BudgetRepository defines persistence operations for BudgetConfiguration
type BudgetRepository interface {
	Create(ctx context.Context, budget *entity.BudgetConfiguration) error
	GetByID(ctx context.Context, id string) (*entity.BudgetConfiguration, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	UpdateStartDate(ctx context.Context, id string, startDate time.Time) error
	List(ctx context.Context, limit, offset int) ([]*entity.BudgetConfiguration, error)
}

// ApproverRepository defines persistence operations for per-level Approver rows
type ApproverRepository interface {
	// Upsert inserts or overwrites the approver for (budget_id, approval_level)
	Upsert(ctx context.Context, approver *entity.Approver) error

	// GetByBudgetID returns the approvers of a budget ordered by level
	GetByBudgetID(ctx context.Context, budgetID string) ([]*entity.Approver, error)

	// GetByLevel returns ErrNotFound when the level is not configured
	GetByLevel(ctx context.Context, budgetID string, level int) (*entity.Approver, error)
}

// SubmissionUpdate carries the fields written when a draft is submitted
type SubmissionUpdate struct {
	SubmittedBy   string
	TotalAmount   decimal.Decimal
	LineItemCount int
	SubmittedAt   time.Time
}

// RequestRepository defines persistence operations for ApprovalRequest
type RequestRepository interface {
	Create(ctx context.Context, request *entity.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error)
	ListByBudgetID(ctx context.Context, budgetID string) ([]*entity.ApprovalRequest, error)

	// MarkSubmitted moves a draft to submitted. Returns ErrConflict when the request is no longer a draft.
	MarkSubmitted(ctx context.Context, id string, update SubmissionUpdate) error

	// TransitionStatus sets overall_status to toStatus only if it currently equals fromStatus.
	// The matching date column (approved/rejected/completed) is stamped with at.
	// Returns ErrConflict when the current status differs.
	TransitionStatus(ctx context.Context, id string, fromStatus, toStatus string, at time.Time) error

	// SetPayrollCycle stores the payroll cycle chosen at the payroll approval
	SetPayrollCycle(ctx context.Context, id string, cycle string, cycleDate *time.Time) error
}

// LineItemRepository defines persistence operations for LineItem
type LineItemRepository interface {
	// CreateBatch inserts items in order; item numbers are assigned by the caller
	CreateBatch(ctx context.Context, items []*entity.LineItem) error

	// GetByRequestID returns items ordered by item_number
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.LineItem, error)
}

// ApprovalLevelRepository defines persistence operations for the approval ledger
type ApprovalLevelRepository interface {
	// Create returns ErrDuplicate when (request_id, approval_level) already exists
	Create(ctx context.Context, record *entity.ApprovalLevelRecord) error

	// GetByRequestID returns the ledger ordered by level
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.ApprovalLevelRecord, error)

	GetByLevel(ctx context.Context, requestID string, level int) (*entity.ApprovalLevelRecord, error)

	// Approve moves a pending record to approved. Returns ErrConflict when it is not pending.
	Approve(ctx context.Context, id string, decision entity.LevelDecision) error

	// Reject moves a pending record to rejected. Returns ErrConflict when it is not pending.
	Reject(ctx context.Context, id string, decision entity.LevelDecision) error

	// Complete moves an approved record to completed. Returns ErrConflict when it is not approved.
	Complete(ctx context.Context, id string, decision entity.LevelDecision) error

	// CountDecisionsByBudgetID counts non-pending records across all requests of a budget
	CountDecisionsByBudgetID(ctx context.Context, budgetID string) (int, error)
}

// NotificationRepository defines persistence operations for in-app Notification rows
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []*entity.Notification) error
	GetByID(ctx context.Context, id string) (*entity.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	ListByRequestID(ctx context.Context, requestID string) ([]*entity.Notification, error)

	// MarkRead returns ErrNotFound unless the notification belongs to recipientID
	MarkRead(ctx context.Context, id string, recipientID string) error
}

// ActivityRepository defines persistence operations for the request audit trail
type ActivityRepository interface {
	Create(ctx context.Context, activity *entity.ActivityLog) error
	ListByRequestID(ctx context.Context, requestID string) ([]*entity.ActivityLog, error)
}

// SequenceRepository hands out per-year request sequence numbers
type SequenceRepository interface {
	// NextValue atomically increments and returns the counter for year, starting at 1
	NextValue(ctx context.Context, year int) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
