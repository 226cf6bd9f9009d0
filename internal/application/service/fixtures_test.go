package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port/porttest"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/pkg/utils"
)

var fixedNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *porttest.Store
	dir      *porttest.Directory
	notifier *porttest.Notifier
	logger   Logger
	seq      int
}

func newFixture() *fixture {
	return &fixture{
		store:    porttest.NewStore(),
		dir:      porttest.NewDirectory(),
		notifier: porttest.NewNotifier(),
		logger:   utils.NewKVLogger(zap.NewNop()),
	}
}

func (f *fixture) clock() time.Time { return fixedNow }

func (f *fixture) ledger() ApprovalLedger {
	return NewApprovalLedger(f.store.Requests(), f.store.Approvers(), f.store.Levels(), f.store.TxManager(), f.logger, f.clock)
}

func (f *fixture) resolver() AutoApprovalResolver {
	return NewAutoApprovalResolver(f.store.Requests(), f.store.Levels(), f.store.TxManager(), f.logger, f.clock)
}

func (f *fixture) dispatcher() NotificationDispatcher {
	return NewNotificationDispatcher(
		f.store.Requests(), f.store.Budgets(), f.store.Levels(), f.store.Notifications(),
		f.dir, f.notifier, NotificationDispatcherConfig{AppBaseURL: "https://approvals.example.com"},
		f.logger, f.clock,
	)
}

// seedBudget stores an active budget with approvers alice (backup bob), carol and dave on levels 1-3
func (f *fixture) seedBudget(t *testing.T, mutate func(*entity.BudgetConfiguration)) *entity.BudgetConfiguration {
	t.Helper()
	f.seq++
	budget := &entity.BudgetConfiguration{
		ID:        fmt.Sprintf("budget-%d", f.seq),
		Name:      fmt.Sprintf("Q%d Bonus Pool", f.seq),
		Currency:  "USD",
		PayCycle:  "monthly",
		MaxLimit:  decimal.NewFromInt(100000),
		StartDate: fixedNow.AddDate(0, -1, 0),
		Status:    entity.BudgetStatusActive,
		CreatedBy: "owner",
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	if mutate != nil {
		mutate(budget)
	}
	ctx := context.Background()
	require.NoError(t, f.store.Budgets().Create(ctx, budget))

	approvers := []struct {
		level           int
		primary, backup string
	}{
		{entity.LevelOne, "alice", "bob"},
		{entity.LevelTwo, "carol", ""},
		{entity.LevelThree, "dave", ""},
	}
	for _, a := range approvers {
		require.NoError(t, f.store.Approvers().Upsert(ctx, &entity.Approver{
			ID:              fmt.Sprintf("%s-l%d", budget.ID, a.level),
			BudgetID:        budget.ID,
			ApprovalLevel:   a.level,
			PrimaryApprover: a.primary,
			BackupApprover:  a.backup,
		}))
	}
	return budget
}

// seedRequest stores a request in status with the given items
func (f *fixture) seedRequest(t *testing.T, budgetID, status, submitter string, items ...*entity.LineItem) *entity.ApprovalRequest {
	t.Helper()
	f.seq++
	request := &entity.ApprovalRequest{
		ID:                 fmt.Sprintf("req-%d", f.seq),
		RequestNumber:      fmt.Sprintf("REQ-2026-%06d", f.seq),
		BudgetID:           budgetID,
		OverallStatus:      status,
		TotalRequestAmount: entity.NetAmount(items),
		LineItemCount:      len(items),
		CreatedBy:          submitter,
		CreatedAt:          fixedNow,
		UpdatedAt:          fixedNow,
	}
	if status != entity.RequestStatusDraft {
		request.SubmittedBy = submitter
		request.SubmittedDate = &fixedNow
	}
	ctx := context.Background()
	require.NoError(t, f.store.Requests().Create(ctx, request))

	for i, item := range items {
		item.ID = fmt.Sprintf("%s-item-%d", request.ID, i+1)
		item.RequestID = request.ID
		item.ItemNumber = i + 1
	}
	if len(items) > 0 {
		require.NoError(t, f.store.LineItems().CreateBatch(ctx, items))
	}
	return request
}

// submittedRequest seeds a submitted request with an initialized ledger
func (f *fixture) submittedRequest(t *testing.T, submitter string) (*entity.BudgetConfiguration, *entity.ApprovalRequest) {
	t.Helper()
	budget := f.seedBudget(t, nil)
	request := f.seedRequest(t, budget.ID, entity.RequestStatusSubmitted, submitter, item("E1", "Manila", "2024-01-10", 500))
	_, err := f.ledger().Initialize(context.Background(), request.ID)
	require.NoError(t, err)
	return budget, request
}

func item(employeeID, location, hireDate string, amount int64) *entity.LineItem {
	return &entity.LineItem{
		EmployeeID:   employeeID,
		EmployeeName: "Employee " + employeeID,
		Location:     location,
		HireDate:     hireDate,
		ItemType:     entity.ItemTypeBonus,
		Amount:       decimal.NewFromInt(amount),
	}
}

func (f *fixture) request(t *testing.T, id string) *entity.ApprovalRequest {
	t.Helper()
	request, err := f.store.Requests().GetByID(context.Background(), id)
	require.NoError(t, err)
	return request
}

func (f *fixture) levels(t *testing.T, requestID string) []*entity.ApprovalLevelRecord {
	t.Helper()
	records, err := f.store.Levels().GetByRequestID(context.Background(), requestID)
	require.NoError(t, err)
	return records
}
