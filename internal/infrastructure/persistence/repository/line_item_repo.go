package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/sqlite"
)

// LineItemRepository implements port.LineItemRepository
type LineItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLineItemRepository creates a new line item repository
func NewLineItemRepository(db *sql.DB, logger *zap.Logger) port.LineItemRepository {
	return &LineItemRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts items in order. Callers wrap it in a transaction for all-or-nothing writes.
func (r *LineItemRepository) CreateBatch(ctx context.Context, items []*entity.LineItem) error {
	query := `
		INSERT INTO request_line_items (
			id, request_id, item_number, employee_id, employee_name, employee_email,
			department, position, geo, location, hire_date, termination_date,
			employee_status, item_type, amount, is_deduction, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.getExecutor(ctx)
	now := time.Now()
	for _, item := range items {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}

		_, err := exec.ExecContext(ctx, query,
			item.ID,
			item.RequestID,
			item.ItemNumber,
			item.EmployeeID,
			item.EmployeeName,
			item.EmployeeEmail,
			item.Department,
			item.Position,
			item.Geo,
			item.Location,
			item.HireDate,
			item.TerminationDate,
			item.EmployeeStatus,
			item.ItemType,
			item.Amount.String(),
			item.IsDeduction,
			item.Notes,
			item.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create line item",
				zap.String("request_id", item.RequestID),
				zap.Int("item_number", item.ItemNumber),
				zap.Error(err))
			return insertError("failed to create line item", err)
		}
	}
	return nil
}

// GetByRequestID returns items ordered by item_number
func (r *LineItemRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.LineItem, error) {
	query := `
		SELECT id, request_id, item_number, employee_id, employee_name, employee_email,
			department, position, geo, location, hire_date, termination_date,
			employee_status, item_type, amount, is_deduction, notes, created_at
		FROM request_line_items
		WHERE request_id = ?
		ORDER BY item_number
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	var items []*entity.LineItem
	for rows.Next() {
		var item entity.LineItem
		err := rows.Scan(
			&item.ID,
			&item.RequestID,
			&item.ItemNumber,
			&item.EmployeeID,
			&item.EmployeeName,
			&item.EmployeeEmail,
			&item.Department,
			&item.Position,
			&item.Geo,
			&item.Location,
			&item.HireDate,
			&item.TerminationDate,
			&item.EmployeeStatus,
			&item.ItemType,
			&item.Amount,
			&item.IsDeduction,
			&item.Notes,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *LineItemRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.LineItemRepository = (*LineItemRepository)(nil)
