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

// ActivityRepository implements port.ActivityRepository
type ActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity log repository
func NewActivityRepository(db *sql.DB, logger *zap.Logger) port.ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit trail entry
func (r *ActivityRepository) Create(ctx context.Context, activity *entity.ActivityLog) error {
	query := `
		INSERT INTO activity_log (id, request_id, action, actor_id, actor_name, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		activity.ID,
		activity.RequestID,
		activity.Action,
		activity.ActorID,
		activity.ActorName,
		activity.Details,
		activity.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create activity log",
			zap.String("request_id", activity.RequestID),
			zap.String("action", activity.Action),
			zap.Error(err))
		return insertError("failed to create activity log", err)
	}
	return nil
}

// ListByRequestID returns a request's audit trail oldest first
func (r *ActivityRepository) ListByRequestID(ctx context.Context, requestID string) ([]*entity.ActivityLog, error) {
	query := `
		SELECT id, request_id, action, actor_id, actor_name, details, created_at
		FROM activity_log
		WHERE request_id = ?
		ORDER BY created_at, rowid
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var logs []*entity.ActivityLog
	for rows.Next() {
		var a entity.ActivityLog
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Action, &a.ActorID, &a.ActorName, &a.Details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		logs = append(logs, &a)
	}
	return logs, rows.Err()
}

func (r *ActivityRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// SequenceRepository implements port.SequenceRepository over the request_sequences table
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// NextValue increments the year's counter in a single statement and returns the new value
func (r *SequenceRepository) NextValue(ctx context.Context, year int) (int64, error) {
	query := `
		INSERT INTO request_sequences (year, last_seq) VALUES (?, 1)
		ON CONFLICT(year) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq
	`

	var value int64
	if err := sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, year).Scan(&value); err != nil {
		r.logger.Warn("Failed to advance request sequence", zap.Int("year", year), zap.Error(err))
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}
	return value, nil
}

// Verify interface compliance
var (
	_ port.ActivityRepository = (*ActivityRepository)(nil)
	_ port.SequenceRepository = (*SequenceRepository)(nil)
)
