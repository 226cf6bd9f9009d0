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

const levelColumns = `
	id, request_id, approval_level, level_name, status,
	assigned_to_primary, assigned_to_backup,
	approved_by, approver_name, approver_title, approval_notes,
	conditions_applied, rejection_reason, approval_date,
	completed_by, completion_notes, completed_date,
	is_self_request, created_at, updated_at`

// ApprovalLevelRepository implements port.ApprovalLevelRepository.
// Every status change is a conditional UPDATE on the expected prior status.
type ApprovalLevelRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalLevelRepository creates a new approval level repository
func NewApprovalLevelRepository(db *sql.DB, logger *zap.Logger) port.ApprovalLevelRepository {
	return &ApprovalLevelRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a ledger row
func (r *ApprovalLevelRepository) Create(ctx context.Context, record *entity.ApprovalLevelRecord) error {
	query := `INSERT INTO approval_levels (` + levelColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		record.ID,
		record.RequestID,
		record.ApprovalLevel,
		record.LevelName,
		record.Status,
		record.Assigned.Primary,
		record.Assigned.Backup,
		record.ApprovedBy,
		record.ApproverName,
		record.ApproverTitle,
		record.ApprovalNotes,
		record.ConditionsApplied,
		record.RejectionReason,
		nullTime(record.ApprovalDate),
		record.CompletedBy,
		record.CompletionNotes,
		nullTime(record.CompletedDate),
		record.IsSelfRequest,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval level",
			zap.String("request_id", record.RequestID),
			zap.Int("level", record.ApprovalLevel),
			zap.Error(err))
		return insertError("failed to create approval level", err)
	}
	return nil
}

// GetByRequestID returns the ledger ordered by level
func (r *ApprovalLevelRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.ApprovalLevelRecord, error) {
	query := `SELECT ` + levelColumns + ` FROM approval_levels
		WHERE request_id = ?
		ORDER BY approval_level`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval levels: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalLevelRecord
	for rows.Next() {
		record, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval level: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetByLevel returns one ledger row
func (r *ApprovalLevelRepository) GetByLevel(ctx context.Context, requestID string, level int) (*entity.ApprovalLevelRecord, error) {
	query := `SELECT ` + levelColumns + ` FROM approval_levels
		WHERE request_id = ? AND approval_level = ?`

	record, err := scanLevel(r.getExecutor(ctx).QueryRowContext(ctx, query, requestID, level))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval level: %w", err)
	}
	return record, nil
}

// Approve moves a pending row to approved
func (r *ApprovalLevelRepository) Approve(ctx context.Context, id string, d entity.LevelDecision) error {
	query := `
		UPDATE approval_levels
		SET status = ?, approved_by = ?, approver_name = ?, approver_title = ?,
			approval_notes = ?, conditions_applied = ?, is_self_request = ?,
			approval_date = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	return r.compareAndSwap(ctx, "approve", id, query,
		entity.LevelStatusApproved, d.ActorID, d.ActorName, d.ActorTitle,
		d.Notes, d.ConditionsApplied, d.IsSelfRequest,
		d.At, d.At,
		id, entity.LevelStatusPending,
	)
}

// Reject moves a pending row to rejected
func (r *ApprovalLevelRepository) Reject(ctx context.Context, id string, d entity.LevelDecision) error {
	query := `
		UPDATE approval_levels
		SET status = ?, approved_by = ?, approver_name = ?, approver_title = ?,
			rejection_reason = ?, approval_date = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	return r.compareAndSwap(ctx, "reject", id, query,
		entity.LevelStatusRejected, d.ActorID, d.ActorName, d.ActorTitle,
		d.RejectionReason, d.At, d.At,
		id, entity.LevelStatusPending,
	)
}

// Complete moves an approved row to completed
func (r *ApprovalLevelRepository) Complete(ctx context.Context, id string, d entity.LevelDecision) error {
	query := `
		UPDATE approval_levels
		SET status = ?, completed_by = ?, completion_notes = ?,
			completed_date = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	return r.compareAndSwap(ctx, "complete", id, query,
		entity.LevelStatusCompleted, d.ActorID, d.Notes,
		d.At, d.At,
		id, entity.LevelStatusApproved,
	)
}

func (r *ApprovalLevelRepository) compareAndSwap(ctx context.Context, op, id, query string, args ...interface{}) error {
	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update approval level",
			zap.String("op", op),
			zap.String("level_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to %s approval level: %w", op, err)
	}
	return expectOne(result, port.ErrConflict)
}

// CountDecisionsByBudgetID counts non-pending rows across all requests of a budget
func (r *ApprovalLevelRepository) CountDecisionsByBudgetID(ctx context.Context, budgetID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM approval_levels l
		JOIN approval_requests q ON q.id = l.request_id
		WHERE q.budget_id = ? AND l.status <> ?
	`

	var count int
	if err := r.getExecutor(ctx).QueryRowContext(ctx, query, budgetID, entity.LevelStatusPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return count, nil
}

func scanLevel(row scanner) (*entity.ApprovalLevelRecord, error) {
	var record entity.ApprovalLevelRecord
	var approvalDate, completedDate sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.RequestID,
		&record.ApprovalLevel,
		&record.LevelName,
		&record.Status,
		&record.Assigned.Primary,
		&record.Assigned.Backup,
		&record.ApprovedBy,
		&record.ApproverName,
		&record.ApproverTitle,
		&record.ApprovalNotes,
		&record.ConditionsApplied,
		&record.RejectionReason,
		&approvalDate,
		&record.CompletedBy,
		&record.CompletionNotes,
		&completedDate,
		&record.IsSelfRequest,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.ApprovalDate = timePtr(approvalDate)
	record.CompletedDate = timePtr(completedDate)
	return &record, nil
}

func (r *ApprovalLevelRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.ApprovalLevelRepository = (*ApprovalLevelRepository)(nil)
