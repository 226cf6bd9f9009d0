package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetConfiguration is a named spending envelope with scope, limits and an approver chain.
// Scope fields hold their raw stored encoding (JSON array, bare scalar or comma-separated list);
// decode them with scope.ParseScopeList.
type BudgetConfiguration struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Currency     string          `json:"currency"`
	PayCycle     string          `json:"pay_cycle"`
	MinLimit     decimal.Decimal `json:"min_limit"`
	MaxLimit     decimal.Decimal `json:"max_limit"`
	ControlLimit decimal.Decimal `json:"control_limit"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	Geo          string          `json:"geo,omitempty"`
	Location     string          `json:"location,omitempty"`
	Client       string          `json:"client,omitempty"`
	AccessOU     string          `json:"access_ou,omitempty"`
	AffectedOU   string          `json:"affected_ou,omitempty"`
	TenureGroup  string          `json:"tenure_group,omitempty"`
	Status       string          `json:"status"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EffectiveStatus derives the budget status at now. An end-dated budget past its end is expired
// unless it was explicitly deactivated.
func (b *BudgetConfiguration) EffectiveStatus(now time.Time) string {
	if b.Status == BudgetStatusDeactivated {
		return BudgetStatusDeactivated
	}
	if b.EndDate != nil && b.EndDate.Before(now) {
		return BudgetStatusExpired
	}
	return BudgetStatusActive
}

// Approver is the configured approver pair for one level of a budget
type Approver struct {
	ID              string    `json:"id"`
	BudgetID        string    `json:"budget_id"`
	ApprovalLevel   int       `json:"approval_level"`
	PrimaryApprover string    `json:"primary_approver"`
	BackupApprover  string    `json:"backup_approver,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot copies the approver pair for storage on a level record
func (a *Approver) Snapshot() ApproverSnapshot {
	return ApproverSnapshot{Primary: a.PrimaryApprover, Backup: a.BackupApprover}
}
