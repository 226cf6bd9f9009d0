package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/workflow"
)

// ApprovalInput is the actor metadata for approving a level
type ApprovalInput struct {
	ApprovedBy        string     `json:"approved_by" validate:"required"`
	ApproverName      string     `json:"approver_name"`
	ApproverTitle     string     `json:"approver_title"`
	ApprovalNotes     string     `json:"approval_notes"`
	ConditionsApplied string     `json:"conditions_applied"`
	PayrollCycle      string     `json:"payroll_cycle"`
	PayrollCycleDate  *time.Time `json:"payroll_cycle_date"`
}

// RejectionInput is the actor metadata for rejecting a level
type RejectionInput struct {
	RejectedBy      string `json:"rejected_by" validate:"required"`
	RejectorName    string `json:"rejector_name"`
	RejectorTitle   string `json:"rejector_title"`
	RejectionReason string `json:"rejection_reason" validate:"required"`
}

// CompletionInput is the actor metadata for completing the payroll payment
type CompletionInput struct {
	CompletedBy     string `json:"completed_by" validate:"required"`
	CompletedByName string `json:"completed_by_name"`
	CompletionNotes string `json:"completion_notes"`
}

// LedgerResult is the state of a request after a ledger mutation
type LedgerResult struct {
	Request *entity.ApprovalRequest
	Record  *entity.ApprovalLevelRecord
	Records []*entity.ApprovalLevelRecord
	Stage   workflow.Stage

	// ChainCompleted is true when this action approved the last outstanding approver level
	ChainCompleted bool
}

// ApprovalLedger owns the per-level approval records of a request
type ApprovalLedger interface {
	// Initialize creates the pending level records for a submitted request. Re-invocation is a no-op.
	Initialize(ctx context.Context, requestID string) ([]*entity.ApprovalLevelRecord, error)

	Approve(ctx context.Context, requestID string, level int, input ApprovalInput) (*LedgerResult, error)
	Reject(ctx context.Context, requestID string, level int, input RejectionInput) (*LedgerResult, error)

	// CompletePayment closes an approved payroll level and completes the request
	CompletePayment(ctx context.Context, requestID string, input CompletionInput) (*LedgerResult, error)

	Records(ctx context.Context, requestID string) ([]*entity.ApprovalLevelRecord, error)
}

type approvalLedgerImpl struct {
	requestRepo  port.RequestRepository
	approverRepo port.ApproverRepository
	levelRepo    port.ApprovalLevelRepository
	txManager    port.TransactionManager
	logger       Logger
	now          Clock
}

// NewApprovalLedger creates a new ApprovalLedger. A nil clock uses time.Now.
func NewApprovalLedger(
	requestRepo port.RequestRepository,
	approverRepo port.ApproverRepository,
	levelRepo port.ApprovalLevelRepository,
	txManager port.TransactionManager,
	logger Logger,
	now Clock,
) ApprovalLedger {
	if now == nil {
		now = time.Now
	}
	return &approvalLedgerImpl{
		requestRepo:  requestRepo,
		approverRepo: approverRepo,
		levelRepo:    levelRepo,
		txManager:    txManager,
		logger:       logger,
		now:          now,
	}
}

// Initialize snapshots the budget's approvers into pending level records, plus the payroll level
func (l *approvalLedgerImpl) Initialize(ctx context.Context, requestID string) ([]*entity.ApprovalLevelRecord, error) {
	request, err := loadRequest(ctx, l.requestRepo, requestID)
	if err != nil {
		return nil, err
	}

	approvers, err := l.approverRepo.GetByBudgetID(ctx, request.BudgetID)
	if err != nil {
		return nil, entity.NewCollaboratorError("load approvers", err)
	}

	now := l.now()
	records := make([]*entity.ApprovalLevelRecord, 0, len(approvers)+1)
	for _, approver := range approvers {
		if approver.ApprovalLevel < entity.LevelOne || approver.ApprovalLevel > entity.MaxApproverLevel {
			continue
		}
		records = append(records, newLevelRecord(requestID, approver.ApprovalLevel, approver.Snapshot(), now))
	}
	records = append(records, newLevelRecord(requestID, entity.LevelPayroll, entity.ApproverSnapshot{}, now))

	for _, record := range records {
		err := l.levelRepo.Create(ctx, record)
		if errors.Is(err, port.ErrDuplicate) {
			l.logger.Info("Approval level already initialized", "request_id", requestID, "level", record.ApprovalLevel)
			continue
		}
		if err != nil {
			return nil, entity.NewCollaboratorError("create approval level", err)
		}
	}

	l.logger.Info("Approval ledger initialized", "request_id", requestID, "levels", len(records))
	return loadLevels(ctx, l.levelRepo, requestID)
}

func newLevelRecord(requestID string, level int, snapshot entity.ApproverSnapshot, now time.Time) *entity.ApprovalLevelRecord {
	return &entity.ApprovalLevelRecord{
		ID:            uuid.NewString(),
		RequestID:     requestID,
		ApprovalLevel: level,
		LevelName:     entity.LevelName(level),
		Status:        entity.LevelStatusPending,
		Assigned:      snapshot,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Approve decides a pending level. Approver levels must be approved in order and the payroll
// level only after the whole approver chain.
func (l *approvalLedgerImpl) Approve(ctx context.Context, requestID string, level int, input ApprovalInput) (*LedgerResult, error) {
	if err := validateLevel(level); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ApprovedBy) == "" {
		return nil, entity.NewFieldError(map[string]string{"approved_by": "is required"})
	}

	decision := entity.LevelDecision{
		ActorID:           input.ApprovedBy,
		ActorName:         input.ApproverName,
		ActorTitle:        input.ApproverTitle,
		Notes:             input.ApprovalNotes,
		ConditionsApplied: input.ConditionsApplied,
		At:                l.now(),
	}

	var result *LedgerResult
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		request, records, record, err := l.loadForAction(txCtx, requestID, level)
		if err != nil {
			return err
		}
		if err := checkRequestAcceptsLevel(request, level); err != nil {
			return err
		}
		if err := checkLowerLevelsApproved(records, level); err != nil {
			return err
		}
		if err := fireLevel(txCtx, record, workflow.TriggerApprove); err != nil {
			return err
		}

		if err := l.levelRepo.Approve(txCtx, record.ID, decision); err != nil {
			return levelWriteError(record, err)
		}
		applyApproval(record, decision)

		trigger := workflow.TriggerAdvance
		switch {
		case level == entity.LevelPayroll:
			trigger = workflow.TriggerApprovePayroll
		case entity.ApproverLevelsApproved(records):
			trigger = workflow.TriggerApproveChain
		}
		if err := l.transitionRequest(txCtx, request, trigger, decision.At); err != nil {
			return err
		}

		if level == entity.LevelPayroll && (input.PayrollCycle != "" || input.PayrollCycleDate != nil) {
			if err := l.requestRepo.SetPayrollCycle(txCtx, requestID, input.PayrollCycle, input.PayrollCycleDate); err != nil {
				return entity.NewCollaboratorError("store payroll cycle", err)
			}
			request.PayrollCycle = input.PayrollCycle
			request.PayrollCycleDate = input.PayrollCycleDate
		}

		result = newLedgerResult(request, record, records)
		result.ChainCompleted = trigger == workflow.TriggerApproveChain
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Approval level approved",
		"request_id", requestID,
		"level", level,
		"approved_by", input.ApprovedBy,
		"overall_status", result.Request.OverallStatus,
		"stage", result.Stage,
	)
	return result, nil
}

// Reject decides a pending level and kills the request
func (l *approvalLedgerImpl) Reject(ctx context.Context, requestID string, level int, input RejectionInput) (*LedgerResult, error) {
	if err := validateLevel(level); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	if strings.TrimSpace(input.RejectedBy) == "" {
		fields["rejected_by"] = "is required"
	}
	if strings.TrimSpace(input.RejectionReason) == "" {
		fields["rejection_reason"] = "is required"
	}
	if len(fields) > 0 {
		return nil, entity.NewFieldError(fields)
	}

	decision := entity.LevelDecision{
		ActorID:         input.RejectedBy,
		ActorName:       input.RejectorName,
		ActorTitle:      input.RejectorTitle,
		RejectionReason: input.RejectionReason,
		At:              l.now(),
	}

	var result *LedgerResult
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		request, records, record, err := l.loadForAction(txCtx, requestID, level)
		if err != nil {
			return err
		}
		if err := checkRequestAcceptsLevel(request, level); err != nil {
			return err
		}
		if err := fireLevel(txCtx, record, workflow.TriggerReject); err != nil {
			return err
		}

		if err := l.levelRepo.Reject(txCtx, record.ID, decision); err != nil {
			return levelWriteError(record, err)
		}
		applyRejection(record, decision)

		if err := l.transitionRequest(txCtx, request, workflow.TriggerReject, decision.At); err != nil {
			return err
		}

		result = newLedgerResult(request, record, records)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Approval level rejected",
		"request_id", requestID,
		"level", level,
		"rejected_by", input.RejectedBy,
	)
	return result, nil
}

// CompletePayment moves the approved payroll level to completed and closes the request
func (l *approvalLedgerImpl) CompletePayment(ctx context.Context, requestID string, input CompletionInput) (*LedgerResult, error) {
	if strings.TrimSpace(input.CompletedBy) == "" {
		return nil, entity.NewFieldError(map[string]string{"completed_by": "is required"})
	}

	decision := entity.LevelDecision{
		ActorID:   input.CompletedBy,
		ActorName: input.CompletedByName,
		Notes:     input.CompletionNotes,
		At:        l.now(),
	}

	var result *LedgerResult
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		request, records, record, err := l.loadForAction(txCtx, requestID, entity.LevelPayroll)
		if err != nil {
			return err
		}
		if record.Status != entity.LevelStatusApproved {
			return entity.NewTransitionError("payment completion requires the payroll level to be approved (current status: %s)", record.Status)
		}
		if err := fireLevel(txCtx, record, workflow.TriggerCompletePayment); err != nil {
			return err
		}

		if err := l.levelRepo.Complete(txCtx, record.ID, decision); err != nil {
			return levelWriteError(record, err)
		}
		record.Status = entity.LevelStatusCompleted
		record.CompletedBy = decision.ActorID
		record.CompletionNotes = decision.Notes
		record.CompletedDate = timePtr(decision.At)
		record.UpdatedAt = decision.At

		if err := l.transitionRequest(txCtx, request, workflow.TriggerCompletePayment, decision.At); err != nil {
			return err
		}

		result = newLedgerResult(request, record, records)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Payroll payment completed", "request_id", requestID, "completed_by", input.CompletedBy)
	return result, nil
}

// Records returns the ledger of a request
func (l *approvalLedgerImpl) Records(ctx context.Context, requestID string) ([]*entity.ApprovalLevelRecord, error) {
	return loadLevels(ctx, l.levelRepo, requestID)
}

func (l *approvalLedgerImpl) loadForAction(ctx context.Context, requestID string, level int) (*entity.ApprovalRequest, []*entity.ApprovalLevelRecord, *entity.ApprovalLevelRecord, error) {
	request, err := loadRequest(ctx, l.requestRepo, requestID)
	if err != nil {
		return nil, nil, nil, err
	}
	if request.IsTerminal() {
		return nil, nil, nil, entity.NewTransitionError("request %s is %s and can no longer change", request.RequestNumber, request.OverallStatus)
	}

	records, err := loadLevels(ctx, l.levelRepo, requestID)
	if err != nil {
		return nil, nil, nil, err
	}
	record := entity.FindLevel(records, level)
	if record == nil {
		return nil, nil, nil, entity.NewNotFoundError("approval level", entity.LevelName(level))
	}
	return request, records, record, nil
}

// transitionRequest fires trigger on the request machine and persists a status change
func (l *approvalLedgerImpl) transitionRequest(ctx context.Context, request *entity.ApprovalRequest, trigger workflow.Trigger, at time.Time) error {
	current := workflow.State(request.OverallStatus)
	next, err := workflow.Next(ctx, workflow.BuildRequestMachine(current), trigger)
	if err != nil {
		return entity.NewTransitionError("request %s cannot %s while %s", request.RequestNumber, strings.ToLower(trigger.String()), request.OverallStatus)
	}
	if next == current {
		return nil
	}

	err = l.requestRepo.TransitionStatus(ctx, request.ID, current.String(), next.String(), at)
	if errors.Is(err, port.ErrConflict) {
		return entity.NewTransitionError("request %s was modified concurrently", request.RequestNumber)
	}
	if err != nil {
		return entity.NewCollaboratorError("update request status", err)
	}

	request.OverallStatus = next.String()
	request.UpdatedAt = at
	switch next {
	case workflow.StateApproved:
		request.ApprovedDate = timePtr(at)
	case workflow.StateRejected:
		request.RejectedDate = timePtr(at)
	case workflow.StateCompleted:
		request.CompletedDate = timePtr(at)
	}
	return nil
}

func validateLevel(level int) error {
	if level < entity.LevelOne || level > entity.LevelPayroll {
		return entity.NewFieldError(map[string]string{"level": "must be between 1 and 4"})
	}
	return nil
}

// checkRequestAcceptsLevel guards which request statuses a level may be decided in
func checkRequestAcceptsLevel(request *entity.ApprovalRequest, level int) error {
	status := request.OverallStatus
	if level == entity.LevelPayroll {
		if status != entity.RequestStatusApproved {
			return entity.NewTransitionError("payroll level requires levels 1-3 to be approved first (request is %s)", status)
		}
		return nil
	}
	if status != entity.RequestStatusSubmitted && status != entity.RequestStatusInProgress {
		return entity.NewTransitionError("level %d cannot be decided while request is %s", level, status)
	}
	return nil
}

func checkLowerLevelsApproved(records []*entity.ApprovalLevelRecord, level int) error {
	for _, r := range records {
		if r.IsPayroll() || r.ApprovalLevel >= level {
			continue
		}
		if r.Status != entity.LevelStatusApproved {
			return entity.NewTransitionError("level %d must be approved before level %d", r.ApprovalLevel, level)
		}
	}
	return nil
}

func fireLevel(ctx context.Context, record *entity.ApprovalLevelRecord, trigger workflow.Trigger) error {
	machine := workflow.BuildLevelMachine(record.ApprovalLevel, workflow.State(record.Status))
	if _, err := workflow.Next(ctx, machine, trigger); err != nil {
		return entity.NewTransitionError("%s is already %s", record.LevelName, record.Status)
	}
	return nil
}

func levelWriteError(record *entity.ApprovalLevelRecord, err error) error {
	if errors.Is(err, port.ErrConflict) {
		return entity.NewTransitionError("%s was decided concurrently", record.LevelName)
	}
	return entity.NewCollaboratorError("update approval level", err)
}

func applyApproval(record *entity.ApprovalLevelRecord, d entity.LevelDecision) {
	record.Status = entity.LevelStatusApproved
	record.ApprovedBy = d.ActorID
	record.ApproverName = d.ActorName
	record.ApproverTitle = d.ActorTitle
	record.ApprovalNotes = d.Notes
	record.ConditionsApplied = d.ConditionsApplied
	record.IsSelfRequest = d.IsSelfRequest
	record.ApprovalDate = timePtr(d.At)
	record.UpdatedAt = d.At
}

func applyRejection(record *entity.ApprovalLevelRecord, d entity.LevelDecision) {
	record.Status = entity.LevelStatusRejected
	record.ApprovedBy = d.ActorID
	record.ApproverName = d.ActorName
	record.ApproverTitle = d.ActorTitle
	record.RejectionReason = d.RejectionReason
	record.ApprovalDate = timePtr(d.At)
	record.UpdatedAt = d.At
}

func newLedgerResult(request *entity.ApprovalRequest, record *entity.ApprovalLevelRecord, records []*entity.ApprovalLevelRecord) *LedgerResult {
	return &LedgerResult{
		Request: request,
		Record:  record,
		Records: records,
		Stage:   workflow.ComputeStage(records, request.OverallStatus),
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
