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

const requestColumns = `
	id, request_number, budget_id, title, description, overall_status,
	total_request_amount, line_item_count, created_by, submitted_by,
	payroll_cycle, payroll_cycle_date, submitted_date, approved_date,
	rejected_date, completed_date, created_at, updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a request. A reused request number yields port.ErrDuplicate.
func (r *RequestRepository) Create(ctx context.Context, request *entity.ApprovalRequest) error {
	query := `INSERT INTO approval_requests (` + requestColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = request.CreatedAt
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		request.ID,
		request.RequestNumber,
		request.BudgetID,
		request.Title,
		request.Description,
		request.OverallStatus,
		request.TotalRequestAmount.String(),
		request.LineItemCount,
		request.CreatedBy,
		request.SubmittedBy,
		request.PayrollCycle,
		nullTime(request.PayrollCycleDate),
		nullTime(request.SubmittedDate),
		nullTime(request.ApprovedDate),
		nullTime(request.RejectedDate),
		nullTime(request.CompletedDate),
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request",
			zap.String("request_id", request.ID),
			zap.String("request_number", request.RequestNumber),
			zap.Error(err))
		return insertError("failed to create request", err)
	}
	return nil
}

// GetByID retrieves a request
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE id = ?`

	request, err := scanRequest(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

// ListByBudgetID returns a budget's requests ordered by request number
func (r *RequestRepository) ListByBudgetID(ctx context.Context, budgetID string) ([]*entity.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests
		WHERE budget_id = ?
		ORDER BY request_number`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.ApprovalRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

// MarkSubmitted moves a draft to submitted
func (r *RequestRepository) MarkSubmitted(ctx context.Context, id string, update port.SubmissionUpdate) error {
	query := `
		UPDATE approval_requests
		SET overall_status = ?, submitted_by = ?, total_request_amount = ?,
			line_item_count = ?, submitted_date = ?, updated_at = ?
		WHERE id = ? AND overall_status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		entity.RequestStatusSubmitted,
		update.SubmittedBy,
		update.TotalAmount.String(),
		update.LineItemCount,
		update.SubmittedAt,
		update.SubmittedAt,
		id,
		entity.RequestStatusDraft,
	)
	if err != nil {
		r.logger.Error("Failed to mark request submitted", zap.String("request_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark submitted: %w", err)
	}
	return r.conflictOrMissing(ctx, id, result)
}

// TransitionStatus performs a compare-and-swap on overall_status
func (r *RequestRepository) TransitionStatus(ctx context.Context, id string, fromStatus, toStatus string, at time.Time) error {
	dateColumn := ""
	switch toStatus {
	case entity.RequestStatusApproved:
		dateColumn = ", approved_date = ?"
	case entity.RequestStatusRejected:
		dateColumn = ", rejected_date = ?"
	case entity.RequestStatusCompleted:
		dateColumn = ", completed_date = ?"
	}

	query := `UPDATE approval_requests SET overall_status = ?, updated_at = ?` + dateColumn +
		` WHERE id = ? AND overall_status = ?`

	args := []interface{}{toStatus, at}
	if dateColumn != "" {
		args = append(args, at)
	}
	args = append(args, id, fromStatus)

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to transition request status",
			zap.String("request_id", id),
			zap.String("from", fromStatus),
			zap.String("to", toStatus),
			zap.Error(err))
		return fmt.Errorf("failed to transition status: %w", err)
	}
	return r.conflictOrMissing(ctx, id, result)
}

// SetPayrollCycle stores the payroll cycle chosen at the payroll approval
func (r *RequestRepository) SetPayrollCycle(ctx context.Context, id string, cycle string, cycleDate *time.Time) error {
	query := `UPDATE approval_requests SET payroll_cycle = ?, payroll_cycle_date = ?, updated_at = ? WHERE id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, cycle, nullTime(cycleDate), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set payroll cycle: %w", err)
	}
	return expectOne(result, port.ErrNotFound)
}

// conflictOrMissing tells a failed compare-and-swap apart from a missing row
func (r *RequestRepository) conflictOrMissing(ctx context.Context, id string, result sql.Result) error {
	if err := expectOne(result, port.ErrConflict); !errors.Is(err, port.ErrConflict) {
		return err
	}

	var exists int
	err := r.getExecutor(ctx).QueryRowContext(ctx, `SELECT 1 FROM approval_requests WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check request: %w", err)
	}
	return port.ErrConflict
}

func scanRequest(row scanner) (*entity.ApprovalRequest, error) {
	var request entity.ApprovalRequest
	var cycleDate, submitted, approved, rejected, completed sql.NullTime

	err := row.Scan(
		&request.ID,
		&request.RequestNumber,
		&request.BudgetID,
		&request.Title,
		&request.Description,
		&request.OverallStatus,
		&request.TotalRequestAmount,
		&request.LineItemCount,
		&request.CreatedBy,
		&request.SubmittedBy,
		&request.PayrollCycle,
		&cycleDate,
		&submitted,
		&approved,
		&rejected,
		&completed,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	request.PayrollCycleDate = timePtr(cycleDate)
	request.SubmittedDate = timePtr(submitted)
	request.ApprovedDate = timePtr(approved)
	request.RejectedDate = timePtr(rejected)
	request.CompletedDate = timePtr(completed)
	return &request, nil
}

func (r *RequestRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
