package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/dispatcher"
	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/application/service"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/event"
	domainwf "github.com/garyjia/budget-approval/internal/domain/workflow"
	"github.com/garyjia/budget-approval/pkg/utils"
)

// Orchestrator drives a request through submission, level decisions and payment completion
type Orchestrator interface {
	// SubmitApprovalRequest gates, submits and initializes the ledger of a draft request
	SubmitApprovalRequest(ctx context.Context, requestID, submittedBy string) *Result

	ApproveRequestAtLevel(ctx context.Context, requestID string, level int, input service.ApprovalInput) *Result
	RejectRequestAtLevel(ctx context.Context, requestID string, level int, input service.RejectionInput) *Result

	// CompletePayrollPayment is only valid once the payroll level is approved
	CompletePayrollPayment(ctx context.Context, requestID string, input service.CompletionInput) *Result
}

// Deps groups the collaborators of the orchestrator
type Deps struct {
	RequestRepo   port.RequestRepository
	BudgetRepo    port.BudgetRepository
	ApproverRepo  port.ApproverRepository
	LineItemRepo  port.LineItemRepository
	ActivityRepo  port.ActivityRepository
	TxManager     port.TransactionManager
	Scope         service.ScopeValidator
	Ledger        service.ApprovalLedger
	AutoApproval  service.AutoApprovalResolver
	Notifications service.NotificationDispatcher
	Dispatcher    dispatcher.Dispatcher
	Logger        *zap.Logger
	Now           service.Clock
}

type orchestratorImpl struct {
	Deps
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(deps Deps) Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &orchestratorImpl{Deps: deps}
}

// SubmitApprovalRequest runs the location then tenure gate, stamps the net amount, moves the draft to
// submitted and snapshots the approver chain. Auto-approval and side effects never fail the submission.
func (o *orchestratorImpl) SubmitApprovalRequest(ctx context.Context, requestID, submittedBy string) *Result {
	fields := map[string]string{}
	if strings.TrimSpace(requestID) == "" {
		fields["request_id"] = "is required"
	}
	if strings.TrimSpace(submittedBy) == "" {
		fields["submitted_by"] = "is required"
	}
	if len(fields) > 0 {
		return o.failed("submit", requestID, entity.NewFieldError(fields))
	}

	err := o.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		items, err := o.checkSubmittable(txCtx, requestID)
		if err != nil {
			return err
		}

		err = o.RequestRepo.MarkSubmitted(txCtx, requestID, port.SubmissionUpdate{
			SubmittedBy:   submittedBy,
			TotalAmount:   entity.NetAmount(items),
			LineItemCount: len(items),
			SubmittedAt:   o.Now(),
		})
		if errors.Is(err, port.ErrConflict) {
			return entity.NewTransitionError("request %s is no longer a draft", requestID)
		}
		if err != nil {
			return entity.NewCollaboratorError("mark request submitted", err)
		}

		_, err = o.Ledger.Initialize(txCtx, requestID)
		return err
	})
	if err != nil {
		return o.failed("submit", requestID, err)
	}

	var warnings []string
	autoApproved := false
	auto, err := o.AutoApproval.Resolve(ctx, requestID, submittedBy)
	if err != nil {
		o.Logger.Warn("Auto-approval failed", zap.String("request_id", requestID), zap.Error(err))
		warnings = append(warnings, fmt.Sprintf("auto-approval failed: %v", err))
	} else {
		autoApproved = auto.AutoApproved
	}

	data, err := o.snapshot(ctx, requestID)
	if err != nil {
		return o.failed("submit", requestID, err)
	}

	effects := o.newSideEffects(requestID)
	effects.activity(ctx, entity.ActivityRequestSubmitted, submittedBy,
		fmt.Sprintf("Submitted %d line item(s), net amount %s", data.Request.LineItemCount, data.Request.TotalRequestAmount.StringFixed(2)))
	effects.notify(ctx, service.NotifyInput{
		Type:      entity.NotificationTypeSubmitted,
		RequestID: requestID,
		ActorID:   submittedBy,
	})
	effects.emit(ctx, event.TypeRequestSubmitted, data, submittedBy, 0)
	if autoApproved {
		effects.activity(ctx, entity.ActivityAutoApproved, submittedBy, entity.SelfApprovalNotes)
		effects.emit(ctx, event.TypeRequestAutoApproved, data, submittedBy, entity.LevelOne)
	}
	warnings = append(warnings, effects.wait()...)

	message := "Request submitted for approval"
	if autoApproved {
		message = "Request submitted and auto-approved at Level 1"
	}
	o.Logger.Info("Request submitted",
		zap.String("request_id", requestID),
		zap.String("request_number", data.Request.RequestNumber),
		zap.String("submitted_by", submittedBy),
		zap.Bool("auto_approved", autoApproved),
		zap.String("stage", data.Stage.String()),
	)

	result := ok(message, &SubmissionData{ActionData: *data, AutoApproved: autoApproved, Notification: effects.report}, warnings)
	result.AutoApproved = boolPtr(autoApproved)
	return result
}

// checkSubmittable loads the draft and applies every precondition and scope gate, returning its items.
// It runs inside the submit transaction so the gated items are the ones whose total is stamped.
func (o *orchestratorImpl) checkSubmittable(ctx context.Context, requestID string) ([]*entity.LineItem, error) {
	request, err := o.RequestRepo.GetByID(ctx, requestID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, entity.NewNotFoundError("request", requestID)
	}
	if err != nil {
		return nil, entity.NewCollaboratorError("load request", err)
	}
	if request.OverallStatus != entity.RequestStatusDraft {
		return nil, entity.NewTransitionError("request %s is already %s", request.RequestNumber, request.OverallStatus)
	}

	budget, err := o.BudgetRepo.GetByID(ctx, request.BudgetID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, entity.NewNotFoundError("budget", request.BudgetID)
	}
	if err != nil {
		return nil, entity.NewCollaboratorError("load budget", err)
	}
	if status := budget.EffectiveStatus(o.Now()); status != entity.BudgetStatusActive {
		return nil, entity.NewValidationError("budget %s is %s and cannot accept submissions", budget.Name, status)
	}

	approvers, err := o.ApproverRepo.GetByBudgetID(ctx, budget.ID)
	if err != nil {
		return nil, entity.NewCollaboratorError("load approvers", err)
	}
	if missing := missingLevels(approvers); len(missing) > 0 {
		return nil, entity.NewValidationError("budget %s has no approver configured for level(s) %s", budget.Name, strings.Join(missing, ", "))
	}

	items, err := o.LineItemRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, entity.NewCollaboratorError("load line items", err)
	}
	if len(items) == 0 {
		return nil, entity.NewValidationError("request %s has no line items", request.RequestNumber)
	}

	location, err := o.Scope.ValidateLocationScope(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !location.Valid {
		return nil, entity.NewValidationError("%s", location.Reason)
	}

	tenure, err := o.Scope.ValidateTenureScope(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !tenure.Valid {
		return nil, entity.NewValidationError("%s", tenure.Reason)
	}

	return items, nil
}

// ApproveRequestAtLevel records an approval and notifies the scoped audience. Approving level 3
// completes the approver chain and hands the request to payroll.
func (o *orchestratorImpl) ApproveRequestAtLevel(ctx context.Context, requestID string, level int, input service.ApprovalInput) *Result {
	if fields := utils.ValidateStruct(input); fields != nil {
		return o.failed("approve", requestID, entity.NewFieldError(fields))
	}

	outcome, err := o.Ledger.Approve(ctx, requestID, level, input)
	if err != nil {
		return o.failed("approve", requestID, err)
	}
	data := actionData(outcome)

	effects := o.newSideEffects(requestID)
	details := fmt.Sprintf("%s approved by %s", entity.LevelName(level), actorLabel(input.ApprovedBy, input.ApproverName))
	if input.ApprovalNotes != "" {
		details += ": " + input.ApprovalNotes
	}
	effects.activity(ctx, entity.ActivityLevelApproved, input.ApprovedBy, details)
	effects.notify(ctx, service.NotifyInput{
		Type:             entity.NotificationTypeApproved,
		RequestID:        requestID,
		ActorID:          input.ApprovedBy,
		Level:            level,
		Notes:            input.ApprovalNotes,
		PayrollCycle:     input.PayrollCycle,
		PayrollCycleDate: input.PayrollCycleDate,
	})
	effects.emit(ctx, event.TypeLevelApproved, data, input.ApprovedBy, level)
	if outcome.ChainCompleted {
		effects.emit(ctx, event.TypePayrollActionRequired, data, input.ApprovedBy, entity.LevelPayroll)
	}
	warnings := effects.wait()

	message := fmt.Sprintf("Request approved at %s", entity.LevelName(level))
	switch {
	case outcome.ChainCompleted:
		message = "All approver levels approved; request handed off to payroll"
	case level == entity.LevelPayroll:
		message = "Payroll approval recorded; awaiting payment completion"
	}
	return ok(message, data, warnings)
}

// RejectRequestAtLevel records a rejection; the request becomes terminal
func (o *orchestratorImpl) RejectRequestAtLevel(ctx context.Context, requestID string, level int, input service.RejectionInput) *Result {
	if fields := utils.ValidateStruct(input); fields != nil {
		return o.failed("reject", requestID, entity.NewFieldError(fields))
	}

	outcome, err := o.Ledger.Reject(ctx, requestID, level, input)
	if err != nil {
		return o.failed("reject", requestID, err)
	}
	data := actionData(outcome)

	effects := o.newSideEffects(requestID)
	effects.activity(ctx, entity.ActivityLevelRejected, input.RejectedBy,
		fmt.Sprintf("%s rejected by %s: %s", entity.LevelName(level), actorLabel(input.RejectedBy, input.RejectorName), input.RejectionReason))
	effects.notify(ctx, service.NotifyInput{
		Type:            entity.NotificationTypeRejected,
		RequestID:       requestID,
		ActorID:         input.RejectedBy,
		Level:           level,
		RejectionReason: input.RejectionReason,
	})
	effects.emit(ctx, event.TypeLevelRejected, data, input.RejectedBy, level)
	warnings := effects.wait()

	return ok(fmt.Sprintf("Request rejected at %s", entity.LevelName(level)), data, warnings)
}

// CompletePayrollPayment closes the payroll level and completes the request
func (o *orchestratorImpl) CompletePayrollPayment(ctx context.Context, requestID string, input service.CompletionInput) *Result {
	if fields := utils.ValidateStruct(input); fields != nil {
		return o.failed("complete payment", requestID, entity.NewFieldError(fields))
	}

	outcome, err := o.Ledger.CompletePayment(ctx, requestID, input)
	if err != nil {
		return o.failed("complete payment", requestID, err)
	}
	data := actionData(outcome)

	effects := o.newSideEffects(requestID)
	details := "Payment completed by " + actorLabel(input.CompletedBy, input.CompletedByName)
	if input.CompletionNotes != "" {
		details += ": " + input.CompletionNotes
	}
	effects.activity(ctx, entity.ActivityPaymentCompleted, input.CompletedBy, details)
	effects.notify(ctx, service.NotifyInput{
		Type:      entity.NotificationTypeCompleted,
		RequestID: requestID,
		ActorID:   input.CompletedBy,
		Level:     entity.LevelPayroll,
		Notes:     input.CompletionNotes,
	})
	effects.emit(ctx, event.TypePaymentCompleted, data, input.CompletedBy, entity.LevelPayroll)
	warnings := effects.wait()

	return ok("Payment completed", data, warnings)
}

func (o *orchestratorImpl) snapshot(ctx context.Context, requestID string) (*ActionData, error) {
	request, err := o.RequestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, entity.NewCollaboratorError("reload request", err)
	}
	records, err := o.Ledger.Records(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &ActionData{
		Request: request,
		Levels:  records,
		Stage:   domainwf.ComputeStage(records, request.OverallStatus),
	}, nil
}

func (o *orchestratorImpl) failed(action, requestID string, err error) *Result {
	fields := []zap.Field{zap.String("action", action), zap.String("request_id", requestID), zap.Error(err)}
	if entity.KindOf(err) == entity.KindCollaborator {
		o.Logger.Error("Workflow action failed", fields...)
	} else {
		o.Logger.Info("Workflow action refused", fields...)
	}
	return fail(err)
}

func actionData(outcome *service.LedgerResult) *ActionData {
	return &ActionData{
		Request: outcome.Request,
		Level:   outcome.Record,
		Levels:  outcome.Records,
		Stage:   outcome.Stage,
	}
}

func missingLevels(approvers []*entity.Approver) []string {
	configured := make(map[int]bool, len(approvers))
	for _, a := range approvers {
		if strings.TrimSpace(a.PrimaryApprover) != "" || strings.TrimSpace(a.BackupApprover) != "" {
			configured[a.ApprovalLevel] = true
		}
	}
	var missing []string
	for level := entity.LevelOne; level <= entity.MaxApproverLevel; level++ {
		if !configured[level] {
			missing = append(missing, fmt.Sprint(level))
		}
	}
	return missing
}

func actorLabel(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

// sideEffects runs the best-effort writes of one action concurrently and collects their failures
type sideEffects struct {
	o         *orchestratorImpl
	requestID string
	pool      *pool.Pool

	mu       sync.Mutex
	warnings []string
	report   *service.NotifyReport
}

func (o *orchestratorImpl) newSideEffects(requestID string) *sideEffects {
	return &sideEffects{o: o, requestID: requestID, pool: pool.New()}
}

func (s *sideEffects) warn(msg string, err error) {
	s.o.Logger.Warn(msg, zap.String("request_id", s.requestID), zap.Error(err))
	s.mu.Lock()
	s.warnings = append(s.warnings, fmt.Sprintf("%s: %v", msg, err))
	s.mu.Unlock()
}

func (s *sideEffects) activity(ctx context.Context, action, actorID, details string) {
	entry := &entity.ActivityLog{
		ID:        uuid.NewString(),
		RequestID: s.requestID,
		Action:    action,
		ActorID:   actorID,
		Details:   details,
		CreatedAt: s.o.Now(),
	}
	s.pool.Go(func() {
		if err := s.o.ActivityRepo.Create(ctx, entry); err != nil {
			s.warn("activity log failed", err)
		}
	})
}

// notify fans out notifications; the report is readable once wait returns
func (s *sideEffects) notify(ctx context.Context, input service.NotifyInput) {
	s.pool.Go(func() {
		report, err := s.o.Notifications.Notify(ctx, input)
		if err != nil {
			s.warn("notification dispatch failed", err)
			return
		}
		s.mu.Lock()
		s.report = report
		s.warnings = append(s.warnings, report.Warnings...)
		s.mu.Unlock()
	})
}

func (s *sideEffects) emit(ctx context.Context, eventType event.Type, data *ActionData, actorID string, level int) {
	if s.o.Dispatcher == nil {
		return
	}
	payload := map[string]interface{}{
		event.PayloadStage:         data.Stage.String(),
		event.PayloadOverallStatus: data.Request.OverallStatus,
		event.PayloadActorID:       actorID,
		event.PayloadRequestNumber: data.Request.RequestNumber,
	}
	if level > 0 {
		payload[event.PayloadLevel] = level
	}
	s.o.Dispatcher.DispatchAsync(ctx, event.NewEvent(eventType, s.requestID, payload))
}

func (s *sideEffects) wait() []string {
	s.pool.Wait()
	return s.warnings
}
