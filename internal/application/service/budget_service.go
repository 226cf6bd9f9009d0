package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/scope"
	"github.com/garyjia/budget-approval/pkg/utils"
)

// CreateBudgetInput is the payload for creating a budget configuration.
// Scope fields accept a JSON array, a single string or a comma-separated string.
type CreateBudgetInput struct {
	Name         string          `json:"name" validate:"required"`
	Description  string          `json:"description"`
	Currency     string          `json:"currency" validate:"omitempty,len=3"`
	PayCycle     string          `json:"pay_cycle"`
	MinLimit     decimal.Decimal `json:"min_limit"`
	MaxLimit     decimal.Decimal `json:"max_limit"`
	ControlLimit decimal.Decimal `json:"control_limit"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      *time.Time      `json:"end_date"`
	Geo          scope.RawList   `json:"geo"`
	Location     scope.RawList   `json:"location"`
	Client       scope.RawList   `json:"client"`
	AccessOU     scope.RawList   `json:"access_ou"`
	AffectedOU   scope.RawList   `json:"affected_ou"`
	TenureGroup  scope.RawList   `json:"tenure_group"`
	CreatedBy    string          `json:"created_by" validate:"required"`
	Approvers    []ApproverInput `json:"approvers" validate:"dive"`
}

// ApproverInput configures the approver pair of one level
type ApproverInput struct {
	ApprovalLevel   int    `json:"approval_level" validate:"required,min=1,max=3"`
	PrimaryApprover string `json:"primary_approver" validate:"required"`
	BackupApprover  string `json:"backup_approver"`
}

// BudgetDetail is a budget with its derived status and configured approvers
type BudgetDetail struct {
	Budget    *entity.BudgetConfiguration `json:"budget"`
	Approvers []*entity.Approver          `json:"approvers"`
}

// BudgetService manages budget configurations and their approver chains
type BudgetService interface {
	CreateBudget(ctx context.Context, input CreateBudgetInput) (*BudgetDetail, error)
	GetBudget(ctx context.Context, budgetID string) (*BudgetDetail, error)
	ListBudgets(ctx context.Context, limit, offset int) ([]*entity.BudgetConfiguration, error)
	UpsertApprover(ctx context.Context, budgetID string, input ApproverInput) (*entity.Approver, error)
	Deactivate(ctx context.Context, budgetID string) error

	// UpdateStartDate is refused once any request of the budget carries an approval decision
	UpdateStartDate(ctx context.Context, budgetID string, startDate time.Time) error
}

type budgetServiceImpl struct {
	budgetRepo   port.BudgetRepository
	approverRepo port.ApproverRepository
	levelRepo    port.ApprovalLevelRepository
	txManager    port.TransactionManager
	logger       Logger
	now          Clock
}

// NewBudgetService creates a new BudgetService. A nil clock uses time.Now.
func NewBudgetService(
	budgetRepo port.BudgetRepository,
	approverRepo port.ApproverRepository,
	levelRepo port.ApprovalLevelRepository,
	txManager port.TransactionManager,
	logger Logger,
	now Clock,
) BudgetService {
	if now == nil {
		now = time.Now
	}
	return &budgetServiceImpl{
		budgetRepo:   budgetRepo,
		approverRepo: approverRepo,
		levelRepo:    levelRepo,
		txManager:    txManager,
		logger:       logger,
		now:          now,
	}
}

// CreateBudget stores the budget and its approvers in one transaction
func (s *budgetServiceImpl) CreateBudget(ctx context.Context, input CreateBudgetInput) (*BudgetDetail, error) {
	if fields := utils.ValidateStruct(input); fields != nil {
		return nil, entity.NewFieldError(fields)
	}
	if err := checkLimits(input); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(input.Approvers))
	for _, a := range input.Approvers {
		if seen[a.ApprovalLevel] {
			return nil, entity.NewValidationError("approval level %d is configured more than once", a.ApprovalLevel)
		}
		seen[a.ApprovalLevel] = true
	}

	now := s.now()
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}
	budget := &entity.BudgetConfiguration{
		ID:           uuid.NewString(),
		Name:         utils.SanitizeString(input.Name),
		Description:  utils.SanitizeString(input.Description),
		Currency:     strings.ToUpper(defaultString(input.Currency, entity.DefaultCurrency)),
		PayCycle:     defaultString(strings.ToLower(input.PayCycle), entity.DefaultPayCycle),
		MinLimit:     input.MinLimit,
		MaxLimit:     input.MaxLimit,
		ControlLimit: input.ControlLimit,
		StartDate:    startDate,
		EndDate:      input.EndDate,
		Geo:          input.Geo.String(),
		Location:     input.Location.String(),
		Client:       input.Client.String(),
		AccessOU:     input.AccessOU.String(),
		AffectedOU:   input.AffectedOU.String(),
		TenureGroup:  input.TenureGroup.String(),
		Status:       entity.BudgetStatusActive,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	approvers := make([]*entity.Approver, 0, len(input.Approvers))
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.budgetRepo.Create(txCtx, budget); err != nil {
			return entity.NewCollaboratorError("create budget", err)
		}
		for _, in := range input.Approvers {
			approver := newApprover(budget.ID, in, now)
			if err := s.approverRepo.Upsert(txCtx, approver); err != nil {
				return entity.NewCollaboratorError("create approver", err)
			}
			approvers = append(approvers, approver)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Budget created", "budget_id", budget.ID, "name", budget.Name, "approver_levels", len(approvers))
	return &BudgetDetail{Budget: budget, Approvers: approvers}, nil
}

// GetBudget returns the budget with its status derived at the current time
func (s *budgetServiceImpl) GetBudget(ctx context.Context, budgetID string) (*BudgetDetail, error) {
	budget, err := loadBudget(ctx, s.budgetRepo, budgetID)
	if err != nil {
		return nil, err
	}
	budget.Status = budget.EffectiveStatus(s.now())

	approvers, err := s.approverRepo.GetByBudgetID(ctx, budgetID)
	if err != nil {
		return nil, entity.NewCollaboratorError("load approvers", err)
	}
	return &BudgetDetail{Budget: budget, Approvers: approvers}, nil
}

// ListBudgets pages through budgets, newest first
func (s *budgetServiceImpl) ListBudgets(ctx context.Context, limit, offset int) ([]*entity.BudgetConfiguration, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	budgets, err := s.budgetRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, entity.NewCollaboratorError("list budgets", err)
	}
	now := s.now()
	for _, b := range budgets {
		b.Status = b.EffectiveStatus(now)
	}
	return budgets, nil
}

// UpsertApprover sets the approver pair for one level. Requests already submitted keep their snapshot.
func (s *budgetServiceImpl) UpsertApprover(ctx context.Context, budgetID string, input ApproverInput) (*entity.Approver, error) {
	if fields := utils.ValidateStruct(input); fields != nil {
		return nil, entity.NewFieldError(fields)
	}
	if _, err := loadBudget(ctx, s.budgetRepo, budgetID); err != nil {
		return nil, err
	}

	approver := newApprover(budgetID, input, s.now())
	if err := s.approverRepo.Upsert(ctx, approver); err != nil {
		return nil, entity.NewCollaboratorError("upsert approver", err)
	}

	s.logger.Info("Approver configured", "budget_id", budgetID, "level", input.ApprovalLevel)
	return approver, nil
}

// Deactivate marks the budget deactivated; new submissions against it are refused
func (s *budgetServiceImpl) Deactivate(ctx context.Context, budgetID string) error {
	if _, err := loadBudget(ctx, s.budgetRepo, budgetID); err != nil {
		return err
	}
	if err := s.budgetRepo.UpdateStatus(ctx, budgetID, entity.BudgetStatusDeactivated); err != nil {
		return entity.NewCollaboratorError("deactivate budget", err)
	}
	s.logger.Info("Budget deactivated", "budget_id", budgetID)
	return nil
}

func (s *budgetServiceImpl) UpdateStartDate(ctx context.Context, budgetID string, startDate time.Time) error {
	if startDate.IsZero() {
		return entity.NewFieldError(map[string]string{"start_date": "is required"})
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		budget, err := loadBudget(txCtx, s.budgetRepo, budgetID)
		if err != nil {
			return err
		}
		if budget.EndDate != nil && startDate.After(*budget.EndDate) {
			return entity.NewValidationError("start date must not be after the end date")
		}

		decisions, err := s.levelRepo.CountDecisionsByBudgetID(txCtx, budgetID)
		if err != nil {
			return entity.NewCollaboratorError("count approval decisions", err)
		}
		if decisions > 0 {
			return entity.NewTransitionError("start date of budget %s cannot change after approvals have been recorded", budget.Name)
		}

		err = s.budgetRepo.UpdateStartDate(txCtx, budgetID, startDate)
		if errors.Is(err, port.ErrNotFound) {
			return entity.NewNotFoundError("budget", budgetID)
		}
		if err != nil {
			return entity.NewCollaboratorError("update start date", err)
		}
		return nil
	})
}

func checkLimits(input CreateBudgetInput) error {
	fields := map[string]string{}
	if input.MinLimit.IsNegative() {
		fields["min_limit"] = "must not be negative"
	}
	if input.MaxLimit.IsPositive() && input.MaxLimit.LessThan(input.MinLimit) {
		fields["max_limit"] = "must not be less than min_limit"
	}
	if input.ControlLimit.IsNegative() {
		fields["control_limit"] = "must not be negative"
	}
	if input.EndDate != nil && !input.StartDate.IsZero() && input.EndDate.Before(input.StartDate) {
		fields["end_date"] = "must not be before start_date"
	}
	if len(fields) > 0 {
		return entity.NewFieldError(fields)
	}
	return nil
}

func newApprover(budgetID string, input ApproverInput, now time.Time) *entity.Approver {
	return &entity.Approver{
		ID:              uuid.NewString(),
		BudgetID:        budgetID,
		ApprovalLevel:   input.ApprovalLevel,
		PrimaryApprover: strings.TrimSpace(input.PrimaryApprover),
		BackupApprover:  strings.TrimSpace(input.BackupApprover),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}
