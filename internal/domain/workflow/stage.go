package workflow

import "github.com/garyjia/budget-approval/internal/domain/entity"

// Stage is the coarse lifecycle label derived from the ledger and overall status.
// It is never persisted.
type Stage string

const (
	StageDraft                    Stage = "draft"
	StageOngoingApproval          Stage = "ongoing_approval"
	StagePendingPayrollApproval   Stage = "pending_payroll_approval"
	StagePendingPaymentCompletion Stage = "pending_payment_completion"
	StageRejected                 Stage = "rejected"
	StageCompleted                Stage = "completed"
)

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// ComputeStage maps level records and the stored overall status to a stage.
// Rules are evaluated in priority order and the first match wins.
func ComputeStage(records []*entity.ApprovalLevelRecord, overallStatus string) Stage {
	switch overallStatus {
	case entity.RequestStatusRejected:
		return StageRejected
	case entity.RequestStatusCompleted:
		return StageCompleted
	}

	for _, r := range records {
		if r.Status == entity.LevelStatusRejected {
			return StageRejected
		}
	}

	if payroll := entity.FindLevel(records, entity.LevelPayroll); payroll != nil {
		switch payroll.Status {
		case entity.LevelStatusCompleted:
			return StageCompleted
		case entity.LevelStatusApproved:
			return StagePendingPaymentCompletion
		}
	}

	if entity.ApproverLevelsApproved(records) {
		return StagePendingPayrollApproval
	}

	if overallStatus == entity.RequestStatusDraft {
		return StageDraft
	}

	return StageOngoingApproval
}
