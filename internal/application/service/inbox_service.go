package service

import (
	"context"
	"errors"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// InboxService reads and acknowledges in-app notifications
type InboxService interface {
	List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*entity.Notification, error)

	// MarkRead only succeeds for the notification's own recipient
	MarkRead(ctx context.Context, notificationID, recipientID string) error
}

type inboxServiceImpl struct {
	notificationRepo port.NotificationRepository
	logger           Logger
}

// NewInboxService creates a new InboxService
func NewInboxService(notificationRepo port.NotificationRepository, logger Logger) InboxService {
	return &inboxServiceImpl{notificationRepo: notificationRepo, logger: logger}
}

func (s *inboxServiceImpl) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	if recipientID == "" {
		return nil, entity.NewValidationError("recipient id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	notifications, err := s.notificationRepo.ListByRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, entity.NewCollaboratorError("list notifications", err)
	}
	return notifications, nil
}

func (s *inboxServiceImpl) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	if notificationID == "" || recipientID == "" {
		return entity.NewValidationError("notification id and recipient id are required")
	}
	err := s.notificationRepo.MarkRead(ctx, notificationID, recipientID)
	if errors.Is(err, port.ErrNotFound) {
		return entity.NewNotFoundError("notification", notificationID)
	}
	if err != nil {
		return entity.NewCollaboratorError("mark notification read", err)
	}
	return nil
}
