package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/budget-approval/migrations"
	"github.com/garyjia/budget-approval/pkg/database"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath}, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func seedBudget(t *testing.T, db *sql.DB) *entity.BudgetConfiguration {
	t.Helper()
	end := testNow.AddDate(1, 0, 0)
	budget := &entity.BudgetConfiguration{
		ID:           uuid.NewString(),
		Name:         "Q2 Bonuses",
		Currency:     "USD",
		PayCycle:     "monthly",
		MinLimit:     decimal.NewFromInt(0),
		MaxLimit:     decimal.RequireFromString("10000.50"),
		ControlLimit: decimal.NewFromInt(8000),
		StartDate:    testNow,
		EndDate:      &end,
		Location:     `["Manila","Cebu"]`,
		TenureGroup:  "1-3",
		Status:       entity.BudgetStatusActive,
		CreatedBy:    "owner",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(t, NewBudgetRepository(db, zap.NewNop()).Create(context.Background(), budget))
	return budget
}

func seedRequest(t *testing.T, db *sql.DB, budgetID, number string) *entity.ApprovalRequest {
	t.Helper()
	req := &entity.ApprovalRequest{
		ID:                 uuid.NewString(),
		RequestNumber:      number,
		BudgetID:           budgetID,
		Title:              "March bonus",
		OverallStatus:      entity.RequestStatusDraft,
		TotalRequestAmount: decimal.Zero,
		CreatedBy:          "userA",
		CreatedAt:          testNow,
		UpdatedAt:          testNow,
	}
	require.NoError(t, NewRequestRepository(db, zap.NewNop()).Create(context.Background(), req))
	return req
}

func seedLevel(t *testing.T, db *sql.DB, requestID string, level int) *entity.ApprovalLevelRecord {
	t.Helper()
	rec := &entity.ApprovalLevelRecord{
		ID:            uuid.NewString(),
		RequestID:     requestID,
		ApprovalLevel: level,
		LevelName:     entity.LevelName(level),
		Status:        entity.LevelStatusPending,
		Assigned:      entity.ApproverSnapshot{Primary: "alice", Backup: "bob"},
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	require.NoError(t, NewApprovalLevelRepository(db, zap.NewNop()).Create(context.Background(), rec))
	return rec
}

func TestBudgetRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewBudgetRepository(db, zap.NewNop())
	ctx := context.Background()

	budget := seedBudget(t, db)

	got, err := repo.GetByID(ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q2 Bonuses", got.Name)
	assert.True(t, got.MaxLimit.Equal(decimal.RequireFromString("10000.50")))
	assert.Equal(t, `["Manila","Cebu"]`, got.Location)
	assert.True(t, got.StartDate.Equal(testNow))
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(*budget.EndDate))

	require.NoError(t, repo.UpdateStatus(ctx, budget.ID, entity.BudgetStatusDeactivated))
	got, err = repo.GetByID(ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BudgetStatusDeactivated, got.Status)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", "active"), port.ErrNotFound)
	assert.ErrorIs(t, repo.Create(ctx, budget), port.ErrDuplicate)
}

func TestApproverRepository_UpsertOverwritesLevel(t *testing.T) {
	db := newTestDB(t)
	repo := NewApproverRepository(db, zap.NewNop())
	ctx := context.Background()
	budget := seedBudget(t, db)

	require.NoError(t, repo.Upsert(ctx, &entity.Approver{ID: uuid.NewString(), BudgetID: budget.ID, ApprovalLevel: 2, PrimaryApprover: "carol"}))
	require.NoError(t, repo.Upsert(ctx, &entity.Approver{ID: uuid.NewString(), BudgetID: budget.ID, ApprovalLevel: 1, PrimaryApprover: "alice", BackupApprover: "bob"}))
	require.NoError(t, repo.Upsert(ctx, &entity.Approver{ID: uuid.NewString(), BudgetID: budget.ID, ApprovalLevel: 2, PrimaryApprover: "erin"}))

	approvers, err := repo.GetByBudgetID(ctx, budget.ID)
	require.NoError(t, err)
	require.Len(t, approvers, 2)
	assert.Equal(t, 1, approvers[0].ApprovalLevel)
	assert.Equal(t, "erin", approvers[1].PrimaryApprover)

	l1, err := repo.GetByLevel(ctx, budget.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", l1.BackupApprover)

	_, err = repo.GetByLevel(ctx, budget.ID, 3)
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestRequestRepository_StatusCompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	repo := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()
	budget := seedBudget(t, db)
	req := seedRequest(t, db, budget.ID, "REQ-2026-000001")

	submitAt := testNow.Add(time.Hour)
	require.NoError(t, repo.MarkSubmitted(ctx, req.ID, port.SubmissionUpdate{
		SubmittedBy:   "userA",
		TotalAmount:   decimal.RequireFromString("1250.75"),
		LineItemCount: 3,
		SubmittedAt:   submitAt,
	}))
	assert.ErrorIs(t, repo.MarkSubmitted(ctx, req.ID, port.SubmissionUpdate{SubmittedAt: submitAt}), port.ErrConflict)
	assert.ErrorIs(t, repo.MarkSubmitted(ctx, "missing", port.SubmissionUpdate{SubmittedAt: submitAt}), port.ErrNotFound)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusSubmitted, got.OverallStatus)
	assert.True(t, got.TotalRequestAmount.Equal(decimal.RequireFromString("1250.75")))
	assert.Equal(t, 3, got.LineItemCount)
	require.NotNil(t, got.SubmittedDate)
	assert.True(t, got.SubmittedDate.Equal(submitAt))

	approveAt := testNow.Add(2 * time.Hour)
	assert.ErrorIs(t, repo.TransitionStatus(ctx, req.ID, entity.RequestStatusInProgress, entity.RequestStatusApproved, approveAt), port.ErrConflict)
	require.NoError(t, repo.TransitionStatus(ctx, req.ID, entity.RequestStatusSubmitted, entity.RequestStatusApproved, approveAt))

	got, err = repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusApproved, got.OverallStatus)
	require.NotNil(t, got.ApprovedDate)
	assert.True(t, got.ApprovedDate.Equal(approveAt))
	assert.Nil(t, got.RejectedDate)

	cycleDate := testNow.AddDate(0, 0, 15)
	require.NoError(t, repo.SetPayrollCycle(ctx, req.ID, "2026-03B", &cycleDate))
	got, err = repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03B", got.PayrollCycle)
	require.NotNil(t, got.PayrollCycleDate)
}

func TestRequestRepository_DuplicateNumber(t *testing.T) {
	db := newTestDB(t)
	budget := seedBudget(t, db)
	seedRequest(t, db, budget.ID, "REQ-2026-000001")

	dup := &entity.ApprovalRequest{
		ID:            uuid.NewString(),
		RequestNumber: "REQ-2026-000001",
		BudgetID:      budget.ID,
		OverallStatus: entity.RequestStatusDraft,
		CreatedBy:     "userB",
	}
	err := NewRequestRepository(db, zap.NewNop()).Create(context.Background(), dup)
	assert.ErrorIs(t, err, port.ErrDuplicate)
}

func TestLineItemRepository_OrderedByItemNumber(t *testing.T) {
	db := newTestDB(t)
	repo := NewLineItemRepository(db, zap.NewNop())
	ctx := context.Background()
	budget := seedBudget(t, db)
	req := seedRequest(t, db, budget.ID, "REQ-2026-000001")

	items := []*entity.LineItem{
		{ID: uuid.NewString(), RequestID: req.ID, ItemNumber: 2, EmployeeID: "E2", EmployeeName: "Ben", ItemType: entity.ItemTypeDeduction, Amount: decimal.NewFromInt(50), IsDeduction: true},
		{ID: uuid.NewString(), RequestID: req.ID, ItemNumber: 1, EmployeeID: "E1", EmployeeName: "Ana", Location: "Manila", HireDate: "2024-01-10", ItemType: entity.ItemTypeBonus, Amount: decimal.RequireFromString("500.25")},
	}
	require.NoError(t, repo.CreateBatch(ctx, items))

	got, err := repo.GetByRequestID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "E1", got[0].EmployeeID)
	assert.Equal(t, "2024-01-10", got[0].HireDate)
	assert.True(t, got[1].IsDeduction)
	assert.True(t, entity.NetAmount(got).Equal(decimal.RequireFromString("450.25")))

	dup := []*entity.LineItem{{ID: uuid.NewString(), RequestID: req.ID, ItemNumber: 1, EmployeeID: "E3", EmployeeName: "Cy", ItemType: entity.ItemTypeBonus}}
	assert.ErrorIs(t, repo.CreateBatch(ctx, dup), port.ErrDuplicate)
}

func TestApprovalLevelRepository_Transitions(t *testing.T) {
	db := newTestDB(t)
	repo := NewApprovalLevelRepository(db, zap.NewNop())
	ctx := context.Background()
	budget := seedBudget(t, db)
	req := seedRequest(t, db, budget.ID, "REQ-2026-000001")

	l1 := seedLevel(t, db, req.ID, entity.LevelOne)
	l4 := seedLevel(t, db, req.ID, entity.LevelPayroll)

	dup := &entity.ApprovalLevelRecord{ID: uuid.NewString(), RequestID: req.ID, ApprovalLevel: entity.LevelOne, LevelName: "Level 1", Status: entity.LevelStatusPending}
	assert.ErrorIs(t, repo.Create(ctx, dup), port.ErrDuplicate)

	decision := entity.LevelDecision{ActorID: "alice", ActorName: "Alice", Notes: "ok", IsSelfRequest: true, At: testNow}
	require.NoError(t, repo.Approve(ctx, l1.ID, decision))
	assert.ErrorIs(t, repo.Approve(ctx, l1.ID, decision), port.ErrConflict)
	assert.ErrorIs(t, repo.Reject(ctx, l1.ID, decision), port.ErrConflict)

	got, err := repo.GetByLevel(ctx, req.ID, entity.LevelOne)
	require.NoError(t, err)
	assert.Equal(t, entity.LevelStatusApproved, got.Status)
	assert.Equal(t, "alice", got.ApprovedBy)
	assert.True(t, got.IsSelfRequest)
	assert.Equal(t, "bob", got.Assigned.Backup)
	require.NotNil(t, got.ApprovalDate)

	assert.ErrorIs(t, repo.Complete(ctx, l4.ID, decision), port.ErrConflict)
	require.NoError(t, repo.Approve(ctx, l4.ID, entity.LevelDecision{ActorID: "pay1", At: testNow}))
	require.NoError(t, repo.Complete(ctx, l4.ID, entity.LevelDecision{ActorID: "pay1", Notes: "paid", At: testNow.Add(time.Hour)}))

	records, err := repo.GetByRequestID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, entity.LevelStatusCompleted, records[1].Status)
	assert.Equal(t, "paid", records[1].CompletionNotes)
	require.NotNil(t, records[1].CompletedDate)

	count, err := repo.CountDecisionsByBudgetID(ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = repo.GetByLevel(ctx, req.ID, entity.LevelTwo)
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestApprovalLevelRepository_ConcurrentApproveHasOneWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewApprovalLevelRepository(db, zap.NewNop())
	budget := seedBudget(t, db)
	req := seedRequest(t, db, budget.ID, "REQ-2026-000001")
	l1 := seedLevel(t, db, req.ID, entity.LevelOne)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- repo.Approve(context.Background(), l1.ID, entity.LevelDecision{ActorID: fmt.Sprintf("u%d", i), At: testNow})
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, port.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestNotificationRepository_InboxAndMarkRead(t *testing.T) {
	db := newTestDB(t)
	repo := NewNotificationRepository(db, zap.NewNop())
	ctx := context.Background()

	level := 2
	notes := []*entity.Notification{
		{ID: uuid.NewString(), RequestID: "r1", RecipientID: "carol", NotificationType: entity.NotificationTypeApproved, Title: "t1", Message: "m1", RelatedApprovalLevel: &level, CreatedAt: testNow},
		{ID: uuid.NewString(), RequestID: "r1", RecipientID: "carol", NotificationType: entity.NotificationTypeSubmitted, Title: "t2", Message: "m2", CreatedAt: testNow.Add(time.Minute)},
		{ID: uuid.NewString(), RequestID: "r2", RecipientID: "dave", NotificationType: entity.NotificationTypeSubmitted, Title: "t3", Message: "m3", CreatedAt: testNow},
	}
	require.NoError(t, repo.CreateBatch(ctx, notes))

	inbox, err := repo.ListByRecipient(ctx, "carol", false, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, "t2", inbox[0].Title)
	require.NotNil(t, inbox[1].RelatedApprovalLevel)
	assert.Equal(t, 2, *inbox[1].RelatedApprovalLevel)

	assert.ErrorIs(t, repo.MarkRead(ctx, notes[0].ID, "dave"), port.ErrNotFound)
	require.NoError(t, repo.MarkRead(ctx, notes[0].ID, "carol"))

	unread, err := repo.ListByRecipient(ctx, "carol", true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "t2", unread[0].Title)

	byRequest, err := repo.ListByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, byRequest, 2)

	got, err := repo.GetByID(ctx, notes[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
}

func TestActivityRepository_Ordered(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.ActivityLog{ID: uuid.NewString(), RequestID: "r1", Action: entity.ActivityRequestCreated, ActorID: "userA", CreatedAt: testNow}))
	require.NoError(t, repo.Create(ctx, &entity.ActivityLog{ID: uuid.NewString(), RequestID: "r1", Action: entity.ActivityRequestSubmitted, ActorID: "userA", CreatedAt: testNow.Add(time.Second)}))

	logs, err := repo.ListByRequestID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, entity.ActivityRequestCreated, logs[0].Action)
	assert.Equal(t, entity.ActivityRequestSubmitted, logs[1].Action)
}

func TestSequenceRepository_PerYearCounters(t *testing.T) {
	db := newTestDB(t)
	repo := NewSequenceRepository(db, zap.NewNop())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextValue(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := repo.NextValue(ctx, 2027)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestSequenceRepository_ConcurrentUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewSequenceRepository(db, zap.NewNop())

	const workers, perWorker = 8, 25
	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v, err := repo.NextValue(context.Background(), 2026)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[v], "duplicate sequence %d", v)
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestDirectoryRepository(t *testing.T) {
	db := newTestDB(t)
	dir := NewDirectoryRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, dir.UpsertOrganization(ctx, &entity.Organization{ID: "acme", Name: "Acme"}))
	require.NoError(t, dir.UpsertOrganization(ctx, &entity.Organization{ID: "acme-ph", Name: "Acme PH", ParentOrgID: "acme"}))
	require.NoError(t, dir.UpsertOrganization(ctx, &entity.Organization{ID: "acme-mnl", Name: "Acme Manila", ParentOrgID: "acme-ph"}))

	require.NoError(t, dir.UpsertUser(ctx, &entity.UserProfile{ID: "alice", Name: "Alice", Email: "alice@example.com", OrgID: "acme-mnl", RoleNames: []string{"Approver"}}))
	require.NoError(t, dir.UpsertUser(ctx, &entity.UserProfile{ID: "pay1", Name: "Pat", Email: "pat@example.com", OrgID: "acme", RoleNames: []string{"Payroll Officer", "Finance"}}))
	require.NoError(t, dir.UpsertUser(ctx, &entity.UserProfile{ID: "pay1", Name: "Pat", Email: "pat@example.com", OrgID: "acme", RoleNames: []string{"PAYROLL Lead"}}))

	root, err := dir.ResolveOrgRoot(ctx, "acme-mnl")
	require.NoError(t, err)
	assert.Equal(t, "acme", root)

	root, err = dir.ResolveOrgRoot(ctx, "unknown-org")
	require.NoError(t, err)
	assert.Equal(t, "unknown-org", root)

	profiles, err := dir.ResolveProfiles(ctx, []string{"alice", "pay1", "ghost"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "acme-mnl", profiles["alice"].OrgID)
	assert.Equal(t, []string{"PAYROLL Lead"}, profiles["pay1"].RoleNames)

	payroll, err := dir.FindUsersByRoleKeyword(ctx, "payroll")
	require.NoError(t, err)
	require.Len(t, payroll, 1)
	assert.Equal(t, "pay1", payroll[0].ID)
}

func TestTransactionManager_RollsBack(t *testing.T) {
	db := newTestDB(t)
	tx := sqlite.NewDB(db, zap.NewNop())
	repo := NewActivityRepository(db, zap.NewNop())
	ctx := context.Background()

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, &entity.ActivityLog{ID: uuid.NewString(), RequestID: "r1", Action: "A", CreatedAt: testNow}))
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	logs, err := repo.ListByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, tx.WithTransaction(ctx, func(ctx context.Context) error {
		return repo.Create(ctx, &entity.ActivityLog{ID: uuid.NewString(), RequestID: "r1", Action: "B", CreatedAt: testNow})
	}))
	logs, err = repo.ListByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
