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

const notificationColumns = `
	id, request_id, recipient_id, notification_type, title, message,
	is_read, related_approval_level, created_at`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts one in-app notification per recipient
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []*entity.Notification) error {
	query := `INSERT INTO notifications (` + notificationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	exec := r.getExecutor(ctx)
	now := time.Now()
	for _, n := range notifications {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}

		_, err := exec.ExecContext(ctx, query,
			n.ID,
			n.RequestID,
			n.RecipientID,
			n.NotificationType,
			n.Title,
			n.Message,
			n.IsRead,
			nullInt(n.RelatedApprovalLevel),
			n.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create notification",
				zap.String("request_id", n.RequestID),
				zap.String("recipient_id", n.RecipientID),
				zap.Error(err))
			return insertError("failed to create notification", err)
		}
	}
	return nil
}

// GetByID retrieves a notification
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListByRecipient returns a user's notifications newest first
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	args := []interface{}{recipientID}
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	return r.list(ctx, query, args...)
}

// ListByRequestID returns every notification raised for a request
func (r *NotificationRepository) ListByRequestID(ctx context.Context, requestID string) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE request_id = ?
		ORDER BY created_at, rowid`
	return r.list(ctx, query, requestID)
}

// MarkRead flags a notification read for its own recipient only
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, recipientID string) error {
	query := `UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, id, recipientID)
	if err != nil {
		r.logger.Error("Failed to mark notification read",
			zap.String("notification_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return expectOne(result, port.ErrNotFound)
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func scanNotification(row scanner) (*entity.Notification, error) {
	var n entity.Notification
	var level sql.NullInt64

	err := row.Scan(
		&n.ID,
		&n.RequestID,
		&n.RecipientID,
		&n.NotificationType,
		&n.Title,
		&n.Message,
		&n.IsRead,
		&level,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.RelatedApprovalLevel = intPtr(level)
	return &n, nil
}

func (r *NotificationRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
