package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/sqlite"
)

const budgetColumns = `
	id, name, description, currency, pay_cycle,
	min_limit, max_limit, control_limit, start_date, end_date,
	geo, location, client, access_ou, affected_ou, tenure_group,
	status, created_by, created_at, updated_at`

// BudgetRepository implements port.BudgetRepository
type BudgetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db *sql.DB, logger *zap.Logger) port.BudgetRepository {
	return &BudgetRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a budget configuration
func (r *BudgetRepository) Create(ctx context.Context, budget *entity.BudgetConfiguration) error {
	query := `INSERT INTO budget_configs (` + budgetColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	if budget.UpdatedAt.IsZero() {
		budget.UpdatedAt = budget.CreatedAt
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		budget.ID,
		budget.Name,
		budget.Description,
		budget.Currency,
		budget.PayCycle,
		budget.MinLimit.String(),
		budget.MaxLimit.String(),
		budget.ControlLimit.String(),
		budget.StartDate,
		nullTime(budget.EndDate),
		budget.Geo,
		budget.Location,
		budget.Client,
		budget.AccessOU,
		budget.AffectedOU,
		budget.TenureGroup,
		budget.Status,
		budget.CreatedBy,
		budget.CreatedAt,
		budget.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create budget",
			zap.String("budget_id", budget.ID),
			zap.Error(err))
		return insertError("failed to create budget", err)
	}

	return nil
}

// GetByID retrieves a budget configuration
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*entity.BudgetConfiguration, error) {
	query := `SELECT ` + budgetColumns + ` FROM budget_configs WHERE id = ?`

	budget, err := scanBudget(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get budget", zap.String("budget_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return budget, nil
}

// UpdateStatus sets the stored status
func (r *BudgetRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	query := `UPDATE budget_configs SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update budget status",
			zap.String("budget_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update budget status: %w", err)
	}
	return expectOne(result, port.ErrNotFound)
}

// UpdateStartDate moves the budget start date
func (r *BudgetRepository) UpdateStartDate(ctx context.Context, id string, startDate time.Time) error {
	query := `UPDATE budget_configs SET start_date = ?, updated_at = ? WHERE id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, startDate, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update budget start date",
			zap.String("budget_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to update start date: %w", err)
	}
	return expectOne(result, port.ErrNotFound)
}

// List returns budgets newest first
func (r *BudgetRepository) List(ctx context.Context, limit, offset int) ([]*entity.BudgetConfiguration, error) {
	query := `SELECT ` + budgetColumns + ` FROM budget_configs
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []*entity.BudgetConfiguration
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

func scanBudget(row scanner) (*entity.BudgetConfiguration, error) {
	var budget entity.BudgetConfiguration
	var endDate sql.NullTime

	err := row.Scan(
		&budget.ID,
		&budget.Name,
		&budget.Description,
		&budget.Currency,
		&budget.PayCycle,
		&budget.MinLimit,
		&budget.MaxLimit,
		&budget.ControlLimit,
		&budget.StartDate,
		&endDate,
		&budget.Geo,
		&budget.Location,
		&budget.Client,
		&budget.AccessOU,
		&budget.AffectedOU,
		&budget.TenureGroup,
		&budget.Status,
		&budget.CreatedBy,
		&budget.CreatedAt,
		&budget.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	budget.EndDate = timePtr(endDate)
	return &budget, nil
}

func (r *BudgetRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// ApproverRepository implements port.ApproverRepository
type ApproverRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApproverRepository creates a new approver repository
func NewApproverRepository(db *sql.DB, logger *zap.Logger) port.ApproverRepository {
	return &ApproverRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or overwrites the approver pair for one level
func (r *ApproverRepository) Upsert(ctx context.Context, approver *entity.Approver) error {
	query := `
		INSERT INTO budget_approvers (
			id, budget_id, approval_level, primary_approver, backup_approver,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(budget_id, approval_level) DO UPDATE SET
			primary_approver = excluded.primary_approver,
			backup_approver = excluded.backup_approver,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	if approver.CreatedAt.IsZero() {
		approver.CreatedAt = now
	}
	if approver.UpdatedAt.IsZero() {
		approver.UpdatedAt = now
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		approver.ID,
		approver.BudgetID,
		approver.ApprovalLevel,
		approver.PrimaryApprover,
		approver.BackupApprover,
		approver.CreatedAt,
		approver.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert approver",
			zap.String("budget_id", approver.BudgetID),
			zap.Int("level", approver.ApprovalLevel),
			zap.Error(err))
		return fmt.Errorf("failed to upsert approver: %w", err)
	}
	return nil
}

// GetByBudgetID returns the approvers of a budget ordered by level
func (r *ApproverRepository) GetByBudgetID(ctx context.Context, budgetID string) ([]*entity.Approver, error) {
	query := `
		SELECT id, budget_id, approval_level, primary_approver, backup_approver, created_at, updated_at
		FROM budget_approvers
		WHERE budget_id = ?
		ORDER BY approval_level
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvers: %w", err)
	}
	defer rows.Close()

	var approvers []*entity.Approver
	for rows.Next() {
		approver, err := scanApprover(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		approvers = append(approvers, approver)
	}
	return approvers, rows.Err()
}

// GetByLevel returns the approver pair configured for level
func (r *ApproverRepository) GetByLevel(ctx context.Context, budgetID string, level int) (*entity.Approver, error) {
	query := `
		SELECT id, budget_id, approval_level, primary_approver, backup_approver, created_at, updated_at
		FROM budget_approvers
		WHERE budget_id = ? AND approval_level = ?
	`

	approver, err := scanApprover(r.getExecutor(ctx).QueryRowContext(ctx, query, budgetID, level))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approver: %w", err)
	}
	return approver, nil
}

func scanApprover(row scanner) (*entity.Approver, error) {
	var approver entity.Approver
	err := row.Scan(
		&approver.ID,
		&approver.BudgetID,
		&approver.ApprovalLevel,
		&approver.PrimaryApprover,
		&approver.BackupApprover,
		&approver.CreatedAt,
		&approver.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &approver, nil
}

func (r *ApproverRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// Verify interface compliance
var (
	_ port.BudgetRepository   = (*BudgetRepository)(nil)
	_ port.ApproverRepository = (*ApproverRepository)(nil)
)
