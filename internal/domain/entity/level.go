package entity

import (
	"fmt"
	"strings"
	"time"
)

// ApproverSnapshot is the approver pair copied onto a level record at submission time.
// Later edits to the budget's approvers never change it.
type ApproverSnapshot struct {
	Primary string `json:"assigned_to_primary,omitempty"`
	Backup  string `json:"assigned_to_backup,omitempty"`
}

// Matches reports whether userID is the primary or backup approver, ignoring case
func (s ApproverSnapshot) Matches(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	return (s.Primary != "" && strings.EqualFold(s.Primary, userID)) ||
		(s.Backup != "" && strings.EqualFold(s.Backup, userID))
}

// IDs returns the non-empty approver ids
func (s ApproverSnapshot) IDs() []string {
	ids := make([]string, 0, 2)
	if s.Primary != "" {
		ids = append(ids, s.Primary)
	}
	if s.Backup != "" {
		ids = append(ids, s.Backup)
	}
	return ids
}

// ApprovalLevelRecord is one row of the approval ledger for a request
type ApprovalLevelRecord struct {
	ID                string           `json:"id"`
	RequestID         string           `json:"request_id"`
	ApprovalLevel     int              `json:"approval_level"`
	LevelName         string           `json:"level_name"`
	Status            string           `json:"status"`
	Assigned          ApproverSnapshot `json:"assigned"`
	ApprovedBy        string           `json:"approved_by,omitempty"`
	ApproverName      string           `json:"approver_name,omitempty"`
	ApproverTitle     string           `json:"approver_title,omitempty"`
	ApprovalNotes     string           `json:"approval_notes,omitempty"`
	ConditionsApplied string           `json:"conditions_applied,omitempty"`
	RejectionReason   string           `json:"rejection_reason,omitempty"`
	ApprovalDate      *time.Time       `json:"approval_date,omitempty"`
	CompletedBy       string           `json:"completed_by,omitempty"`
	CompletionNotes   string           `json:"completion_notes,omitempty"`
	CompletedDate     *time.Time       `json:"completed_date,omitempty"`
	IsSelfRequest     bool             `json:"is_self_request"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// IsPayroll reports whether this record is the fixed payroll level
func (r *ApprovalLevelRecord) IsPayroll() bool {
	return r.ApprovalLevel == LevelPayroll
}

// LevelName returns the display name for an approval level
func LevelName(level int) string {
	if level == LevelPayroll {
		return PayrollLevelName
	}
	return fmt.Sprintf("Level %d", level)
}

// LevelDecision carries the actor metadata written by an approve, reject or complete action
type LevelDecision struct {
	ActorID           string
	ActorName         string
	ActorTitle        string
	Notes             string
	ConditionsApplied string
	RejectionReason   string
	IsSelfRequest     bool
	At                time.Time
}

// FindLevel returns the record for level, or nil
func FindLevel(records []*ApprovalLevelRecord, level int) *ApprovalLevelRecord {
	for _, r := range records {
		if r.ApprovalLevel == level {
			return r
		}
	}
	return nil
}

// ApproverLevelsApproved reports whether every non-payroll level present is approved.
// It is false when no approver level exists.
func ApproverLevelsApproved(records []*ApprovalLevelRecord) bool {
	found := false
	for _, r := range records {
		if r.IsPayroll() {
			continue
		}
		found = true
		if r.Status != LevelStatusApproved {
			return false
		}
	}
	return found
}

// HighestApproverLevel returns the highest non-payroll level present, or 0
func HighestApproverLevel(records []*ApprovalLevelRecord) int {
	highest := 0
	for _, r := range records {
		if !r.IsPayroll() && r.ApprovalLevel > highest {
			highest = r.ApprovalLevel
		}
	}
	return highest
}
