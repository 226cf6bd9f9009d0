package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalRequest is one instance of spending against a budget configuration
type ApprovalRequest struct {
	ID                 string          `json:"id"`
	RequestNumber      string          `json:"request_number"`
	BudgetID           string          `json:"budget_id"`
	Title              string          `json:"title,omitempty"`
	Description        string          `json:"description,omitempty"`
	OverallStatus      string          `json:"overall_status"`
	TotalRequestAmount decimal.Decimal `json:"total_request_amount"`
	LineItemCount      int             `json:"line_item_count"`
	CreatedBy          string          `json:"created_by"`
	SubmittedBy        string          `json:"submitted_by,omitempty"`
	PayrollCycle       string          `json:"payroll_cycle,omitempty"`
	PayrollCycleDate   *time.Time      `json:"payroll_cycle_date,omitempty"`
	SubmittedDate      *time.Time      `json:"submitted_date,omitempty"`
	ApprovedDate       *time.Time      `json:"approved_date,omitempty"`
	RejectedDate       *time.Time      `json:"rejected_date,omitempty"`
	CompletedDate      *time.Time      `json:"completed_date,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the request can no longer change status
func (r *ApprovalRequest) IsTerminal() bool {
	return r.OverallStatus == RequestStatusRejected || r.OverallStatus == RequestStatusCompleted
}

// Requestor returns the submitter, falling back to the creator for drafts
func (r *ApprovalRequest) Requestor() string {
	if r.SubmittedBy != "" {
		return r.SubmittedBy
	}
	return r.CreatedBy
}

// LineItem is a single employee payment line on a request
type LineItem struct {
	ID              string          `json:"id"`
	RequestID       string          `json:"request_id"`
	ItemNumber      int             `json:"item_number"`
	EmployeeID      string          `json:"employee_id"`
	EmployeeName    string          `json:"employee_name"`
	EmployeeEmail   string          `json:"employee_email,omitempty"`
	Department      string          `json:"department,omitempty"`
	Position        string          `json:"position,omitempty"`
	Geo             string          `json:"geo,omitempty"`
	Location        string          `json:"location,omitempty"`
	HireDate        string          `json:"hire_date,omitempty"`
	TerminationDate string          `json:"termination_date,omitempty"`
	EmployeeStatus  string          `json:"employee_status,omitempty"`
	ItemType        string          `json:"item_type"`
	Amount          decimal.Decimal `json:"amount"`
	IsDeduction     bool            `json:"is_deduction"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SignedAmount is the item's contribution to the request total
func (i *LineItem) SignedAmount() decimal.Decimal {
	if i.IsDeduction {
		return i.Amount.Neg()
	}
	return i.Amount
}

// NetAmount sums the signed contributions of items: additions minus deductions
func NetAmount(items []*LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.SignedAmount())
	}
	return total
}

// MaxItemNumber returns the largest item number in items, or 0
func MaxItemNumber(items []*LineItem) int {
	max := 0
	for _, item := range items {
		if item.ItemNumber > max {
			max = item.ItemNumber
		}
	}
	return max
}
