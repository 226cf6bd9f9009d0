package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/dispatcher"
	"github.com/garyjia/budget-approval/internal/application/port/porttest"
	"github.com/garyjia/budget-approval/internal/application/service"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/event"
	domainwf "github.com/garyjia/budget-approval/internal/domain/workflow"
	"github.com/garyjia/budget-approval/pkg/utils"
)

var now = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	store    *porttest.Store
	dir      *porttest.Directory
	notifier *porttest.Notifier
	events   dispatcher.Dispatcher
	orch     Orchestrator

	mu       sync.Mutex
	received []*event.Event
	seq      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    porttest.NewStore(),
		dir:      porttest.NewDirectory(),
		notifier: porttest.NewNotifier(),
		events:   dispatcher.NewDispatcher(),
	}
	h.events.SubscribeNamed(dispatcher.AnyType, "recorder", func(_ context.Context, evt *event.Event) error {
		h.mu.Lock()
		h.received = append(h.received, evt)
		h.mu.Unlock()
		return nil
	})

	h.dir.
		AddOrg("acme", "").
		AddOrg("acme-ops", "acme").
		AddOrg("globex", "").
		AddUser("userA", "acme-ops").
		AddUser("userB", "acme").
		AddUser("userC", "acme").
		AddUser("userD", "acme-ops").
		AddUser("owner", "acme").
		AddUser("pay1", "acme", "Payroll Officer").
		AddUser("pay2", "acme-ops", "payroll admin").
		AddUser("pay3", "globex", "Payroll Officer")

	clock := func() time.Time { return now }
	logger := utils.NewKVLogger(zap.NewNop())
	s := h.store
	ledger := service.NewApprovalLedger(s.Requests(), s.Approvers(), s.Levels(), s.TxManager(), logger, clock)

	h.orch = NewOrchestrator(Deps{
		RequestRepo:  s.Requests(),
		BudgetRepo:   s.Budgets(),
		ApproverRepo: s.Approvers(),
		LineItemRepo: s.LineItems(),
		ActivityRepo: s.Activity(),
		TxManager:    s.TxManager(),
		Scope:        service.NewScopeValidator(s.Requests(), s.Budgets(), s.LineItems(), clock),
		Ledger:       ledger,
		AutoApproval: service.NewAutoApprovalResolver(s.Requests(), s.Levels(), s.TxManager(), logger, clock),
		Notifications: service.NewNotificationDispatcher(
			s.Requests(), s.Budgets(), s.Levels(), s.Notifications(), h.dir, h.notifier,
			service.NotificationDispatcherConfig{}, logger, clock,
		),
		Dispatcher: h.events,
		Now:        clock,
	})
	return h
}

// budget seeds L1=userA, L2=userB, L3=userC
func (h *harness) budget(t *testing.T, mutate func(*entity.BudgetConfiguration)) *entity.BudgetConfiguration {
	t.Helper()
	h.seq++
	b := &entity.BudgetConfiguration{
		ID:        fmt.Sprintf("budget-%d", h.seq),
		Name:      "Retention Bonus",
		Currency:  "USD",
		StartDate: now.AddDate(0, -1, 0),
		Status:    entity.BudgetStatusActive,
		CreatedBy: "owner",
	}
	if mutate != nil {
		mutate(b)
	}
	ctx := context.Background()
	require.NoError(t, h.store.Budgets().Create(ctx, b))
	for level, id := range map[int]string{1: "userA", 2: "userB", 3: "userC"} {
		require.NoError(t, h.store.Approvers().Upsert(ctx, &entity.Approver{
			ID: fmt.Sprintf("%s-%d", b.ID, level), BudgetID: b.ID, ApprovalLevel: level, PrimaryApprover: id,
		}))
	}
	return b
}

// draft seeds a draft with a $500 bonus and a $100 deduction
func (h *harness) draft(t *testing.T, budgetID, creator string, items ...*entity.LineItem) string {
	t.Helper()
	h.seq++
	id := fmt.Sprintf("req-%d", h.seq)
	ctx := context.Background()
	require.NoError(t, h.store.Requests().Create(ctx, &entity.ApprovalRequest{
		ID:            id,
		RequestNumber: fmt.Sprintf("REQ-2026-%06d", h.seq),
		BudgetID:      budgetID,
		OverallStatus: entity.RequestStatusDraft,
		CreatedBy:     creator,
		CreatedAt:     now,
	}))
	if items == nil {
		items = []*entity.LineItem{
			{EmployeeID: "E1", EmployeeName: "Ann", Location: "Manila", HireDate: "2025-12-01", ItemType: entity.ItemTypeBonus, Amount: decimal.NewFromInt(500)},
			{EmployeeID: "E2", EmployeeName: "Ben", Location: "Manila", HireDate: "2025-12-01", ItemType: entity.ItemTypeDeduction, Amount: decimal.NewFromInt(100), IsDeduction: true},
		}
	}
	for i, item := range items {
		item.ID = fmt.Sprintf("%s-%d", id, i)
		item.RequestID = id
		item.ItemNumber = i + 1
	}
	require.NoError(t, h.store.LineItems().CreateBatch(ctx, items))
	return id
}

func (h *harness) request(t *testing.T, id string) *entity.ApprovalRequest {
	t.Helper()
	r, err := h.store.Requests().GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (h *harness) levels(t *testing.T, id string) []*entity.ApprovalLevelRecord {
	t.Helper()
	records, err := h.store.Levels().GetByRequestID(context.Background(), id)
	require.NoError(t, err)
	return records
}

func (h *harness) eventTypes(t *testing.T) []event.Type {
	t.Helper()
	require.NoError(t, h.events.Close())
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]event.Type, 0, len(h.received))
	for _, evt := range h.received {
		types = append(types, evt.Type)
	}
	return types
}

func (h *harness) recipients(notificationType string) []string {
	var ids []string
	for _, n := range h.store.AllNotifications() {
		if n.NotificationType == notificationType {
			ids = append(ids, n.RecipientID)
		}
	}
	return ids
}

func approveAll(t *testing.T, h *harness, requestID string, levels ...int) {
	t.Helper()
	actors := map[int]string{1: "userA", 2: "userB", 3: "userC", 4: "pay1"}
	for _, level := range levels {
		result := h.orch.ApproveRequestAtLevel(context.Background(), requestID, level, service.ApprovalInput{ApprovedBy: actors[level]})
		require.True(t, result.Success, "level %d: %v", level, result.Error)
	}
}

func TestSubmit_HappyPath(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userD")

	result := h.orch.SubmitApprovalRequest(context.Background(), id, "userD")
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.AutoApproved)
	assert.False(t, *result.AutoApproved)
	assert.Equal(t, "Request submitted for approval", result.Message)

	request := h.request(t, id)
	assert.Equal(t, entity.RequestStatusSubmitted, request.OverallStatus)
	assert.True(t, decimal.NewFromInt(400).Equal(request.TotalRequestAmount), request.TotalRequestAmount.String())
	assert.Equal(t, 2, request.LineItemCount)
	assert.Equal(t, "userD", request.SubmittedBy)
	require.NotNil(t, request.SubmittedDate)

	records := h.levels(t, id)
	require.Len(t, records, 4)
	for _, r := range records {
		assert.Equal(t, entity.LevelStatusPending, r.Status)
	}

	data, ok := result.Data.(*SubmissionData)
	require.True(t, ok)
	assert.Equal(t, domainwf.StageOngoingApproval, data.Stage)
	require.NotNil(t, data.Notification)
	assert.ElementsMatch(t, []string{"userD", "owner", "userA", "userB", "userC"}, h.recipients(entity.NotificationTypeSubmitted))
	assert.Equal(t, []event.Type{event.TypeRequestSubmitted}, h.eventTypes(t))

	var actions []string
	for _, a := range h.store.AllActivity() {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []string{entity.ActivityRequestSubmitted}, actions)
}

func TestSubmit_SelfApproval(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userA")

	result := h.orch.SubmitApprovalRequest(context.Background(), id, "userA")
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.AutoApproved)
	assert.True(t, *result.AutoApproved)
	assert.Equal(t, "Request submitted and auto-approved at Level 1", result.Message)

	records := h.levels(t, id)
	assert.Equal(t, entity.LevelStatusApproved, records[0].Status)
	assert.True(t, records[0].IsSelfRequest)
	assert.Equal(t, entity.LevelStatusPending, records[1].Status)
	assert.Equal(t, entity.RequestStatusInProgress, h.request(t, id).OverallStatus)

	assert.ElementsMatch(t, []event.Type{event.TypeRequestSubmitted, event.TypeRequestAutoApproved}, h.eventTypes(t))
}

func TestSubmit_SelfMatchAtLevel2DoesNotAutoApprove(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userB")

	result := h.orch.SubmitApprovalRequest(context.Background(), id, "userB")
	require.True(t, result.Success, result.Error)
	assert.False(t, *result.AutoApproved)
	assert.Equal(t, entity.LevelStatusPending, h.levels(t, id)[1].Status)
}

func TestSubmit_TenureGateRejection(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, func(b *entity.BudgetConfiguration) { b.TenureGroup = `["0-6months"]` })
	id := h.draft(t, b.ID, "userD", &entity.LineItem{
		EmployeeID: "E7", EmployeeName: "Old Timer", HireDate: now.AddDate(-3, 0, 0).Format("2006-01-02"),
		ItemType: entity.ItemTypeBonus, Amount: decimal.NewFromInt(100),
	})

	result := h.orch.SubmitApprovalRequest(context.Background(), id, "userD")
	assert.False(t, result.Success)
	assert.Equal(t, entity.KindValidation, result.Kind)
	assert.Contains(t, result.Error, "Tenure scope violation")
	assert.Contains(t, result.Error, "E7 (2-5years)")

	assert.Empty(t, h.levels(t, id))
	assert.Equal(t, entity.RequestStatusDraft, h.request(t, id).OverallStatus)
	assert.Empty(t, h.store.AllNotifications())
}

func TestSubmit_LocationGateRunsFirst(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, func(b *entity.BudgetConfiguration) {
		b.Location = "Cebu"
		b.TenureGroup = `["5plus-years"]`
	})
	id := h.draft(t, b.ID, "userD")

	result := h.orch.SubmitApprovalRequest(context.Background(), id, "userD")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Location scope violation")
	assert.Equal(t, entity.RequestStatusDraft, h.request(t, id).OverallStatus)
}

func TestSubmit_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("missing fields", func(t *testing.T) {
		result := h.orch.SubmitApprovalRequest(ctx, "", "")
		assert.False(t, result.Success)
		assert.Equal(t, map[string]string{"request_id": "is required", "submitted_by": "is required"}, result.Error)
	})

	t.Run("unknown request", func(t *testing.T) {
		result := h.orch.SubmitApprovalRequest(ctx, "nope", "userD")
		assert.Equal(t, entity.KindNotFound, result.Kind)
	})

	t.Run("no line items", func(t *testing.T) {
		b := h.budget(t, nil)
		id := h.draft(t, b.ID, "userD", []*entity.LineItem{}...)
		result := h.orch.SubmitApprovalRequest(ctx, id, "userD")
		assert.Equal(t, entity.KindValidation, result.Kind)
		assert.Contains(t, result.Error, "no line items")
	})

	t.Run("expired budget", func(t *testing.T) {
		ended := now.AddDate(0, 0, -1)
		b := h.budget(t, func(b *entity.BudgetConfiguration) { b.EndDate = &ended })
		id := h.draft(t, b.ID, "userD")
		result := h.orch.SubmitApprovalRequest(ctx, id, "userD")
		assert.Equal(t, entity.KindValidation, result.Kind)
		assert.Contains(t, result.Error, "expired")
	})

	t.Run("incomplete approver chain", func(t *testing.T) {
		h.seq++
		b := &entity.BudgetConfiguration{ID: "partial", Name: "Partial", Status: entity.BudgetStatusActive, CreatedBy: "owner"}
		require.NoError(t, h.store.Budgets().Create(ctx, b))
		require.NoError(t, h.store.Approvers().Upsert(ctx, &entity.Approver{ID: "p1", BudgetID: b.ID, ApprovalLevel: 1, PrimaryApprover: "userA"}))
		id := h.draft(t, b.ID, "userD")
		result := h.orch.SubmitApprovalRequest(ctx, id, "userD")
		assert.Equal(t, entity.KindValidation, result.Kind)
		assert.Contains(t, result.Error, "level(s) 2, 3")
	})

	t.Run("double submission", func(t *testing.T) {
		b := h.budget(t, nil)
		id := h.draft(t, b.ID, "userD")
		require.True(t, h.orch.SubmitApprovalRequest(ctx, id, "userD").Success)
		result := h.orch.SubmitApprovalRequest(ctx, id, "userD")
		assert.Equal(t, entity.KindTransition, result.Kind)
		assert.Len(t, h.levels(t, id), 4)
	})
}

func TestApprove_FullChainHandsOffToPayroll(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userD")
	require.True(t, h.orch.SubmitApprovalRequest(context.Background(), id, "userD").Success)

	approveAll(t, h, id, 1, 2)
	assert.Empty(t, h.recipients(entity.NotificationTypePayrollActionRequired))

	result := h.orch.ApproveRequestAtLevel(context.Background(), id, 3, service.ApprovalInput{ApprovedBy: "userC"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "All approver levels approved; request handed off to payroll", result.Message)

	data := result.Data.(*ActionData)
	assert.Equal(t, domainwf.StagePendingPayrollApproval, data.Stage)
	assert.Equal(t, entity.RequestStatusApproved, data.Request.OverallStatus)

	// pay3 holds a payroll role under a different org root
	assert.ElementsMatch(t, []string{"pay1", "pay2"}, h.recipients(entity.NotificationTypePayrollActionRequired))
	assert.Contains(t, h.eventTypes(t), event.TypePayrollActionRequired)
}

func TestApprove_OutOfOrderIsRefused(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userD")
	require.True(t, h.orch.SubmitApprovalRequest(context.Background(), id, "userD").Success)

	result := h.orch.ApproveRequestAtLevel(context.Background(), id, 3, service.ApprovalInput{ApprovedBy: "userC"})
	assert.False(t, result.Success)
	assert.Equal(t, entity.KindTransition, result.Kind)

	result = h.orch.ApproveRequestAtLevel(context.Background(), id, 1, service.ApprovalInput{})
	assert.Equal(t, entity.KindValidation, result.Kind)
	assert.Equal(t, map[string]string{"approved_by": "is required"}, result.Error)
}

func TestReject_IsTerminal(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userD")
	ctx := context.Background()
	require.True(t, h.orch.SubmitApprovalRequest(ctx, id, "userD").Success)
	approveAll(t, h, id, 1)

	result := h.orch.RejectRequestAtLevel(ctx, id, 2, service.RejectionInput{RejectedBy: "userB", RejectionReason: "exceeds policy"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Request rejected at Level 2", result.Message)
	assert.Equal(t, entity.RequestStatusRejected, h.request(t, id).OverallStatus)
	assert.NotEmpty(t, h.recipients(entity.NotificationTypeRejected))

	result = h.orch.ApproveRequestAtLevel(ctx, id, 3, service.ApprovalInput{ApprovedBy: "userC"})
	assert.False(t, result.Success)
	assert.Equal(t, entity.KindTransition, result.Kind)

	result = h.orch.CompletePayrollPayment(ctx, id, service.CompletionInput{CompletedBy: "pay1"})
	assert.Equal(t, entity.KindTransition, result.Kind)
	assert.Equal(t, entity.RequestStatusRejected, h.request(t, id).OverallStatus)

	result = h.orch.RejectRequestAtLevel(ctx, id, 3, service.RejectionInput{RejectedBy: "userC"})
	assert.Equal(t, map[string]string{"rejection_reason": "is required"}, result.Error)
}

func TestCompletePayment(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userD")
	ctx := context.Background()
	require.True(t, h.orch.SubmitApprovalRequest(ctx, id, "userD").Success)
	approveAll(t, h, id, 1, 2, 3)

	early := h.orch.CompletePayrollPayment(ctx, id, service.CompletionInput{CompletedBy: "pay1"})
	assert.Equal(t, entity.KindTransition, early.Kind)

	approveAll(t, h, id, 4)
	result := h.orch.CompletePayrollPayment(ctx, id, service.CompletionInput{CompletedBy: "pay1", CompletionNotes: "Paid in March run"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, domainwf.StageCompleted, result.Data.(*ActionData).Stage)
	assert.Equal(t, entity.RequestStatusCompleted, h.request(t, id).OverallStatus)
	assert.NotEmpty(t, h.recipients(entity.NotificationTypeCompleted))

	again := h.orch.CompletePayrollPayment(ctx, id, service.CompletionInput{CompletedBy: "pay1"})
	assert.Equal(t, entity.KindTransition, again.Kind)

	assert.Contains(t, h.eventTypes(t), event.TypePaymentCompleted)
}

func TestSideEffectFailuresBecomeWarnings(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	id := h.draft(t, b.ID, "userD")
	h.store.ActivityErr = errors.New("activity table locked")
	h.store.NotificationErr = errors.New("notifications table locked")
	h.notifier.FailFor["owner@example.com"] = errors.New("smtp timeout")

	result := h.orch.SubmitApprovalRequest(context.Background(), id, "userD")
	require.True(t, result.Success, result.Error)
	assert.Len(t, result.Warnings, 3)
	assert.Equal(t, entity.RequestStatusSubmitted, h.request(t, id).OverallStatus)
}

func TestApprovedImpliesChainApproved(t *testing.T) {
	h := newHarness(t)
	b := h.budget(t, nil)
	ctx := context.Background()

	for _, stopAfter := range []int{0, 1, 2, 3} {
		id := h.draft(t, b.ID, "userD")
		require.True(t, h.orch.SubmitApprovalRequest(ctx, id, "userD").Success)
		for level := 1; level <= stopAfter; level++ {
			approveAll(t, h, id, level)
		}

		request := h.request(t, id)
		if request.OverallStatus == entity.RequestStatusApproved {
			assert.True(t, entity.ApproverLevelsApproved(h.levels(t, id)))
		}
		assert.Equal(t, stopAfter == 3, request.OverallStatus == entity.RequestStatusApproved)
	}
}
