package service

import (
	"context"
	"errors"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

func loadRequest(ctx context.Context, repo port.RequestRepository, id string) (*entity.ApprovalRequest, error) {
	if id == "" {
		return nil, entity.NewValidationError("request id is required")
	}
	request, err := repo.GetByID(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, entity.NewNotFoundError("request", id)
	}
	if err != nil {
		return nil, entity.NewCollaboratorError("load request", err)
	}
	return request, nil
}

func loadBudget(ctx context.Context, repo port.BudgetRepository, id string) (*entity.BudgetConfiguration, error) {
	if id == "" {
		return nil, entity.NewValidationError("budget id is required")
	}
	budget, err := repo.GetByID(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, entity.NewNotFoundError("budget", id)
	}
	if err != nil {
		return nil, entity.NewCollaboratorError("load budget", err)
	}
	return budget, nil
}

func loadLevels(ctx context.Context, repo port.ApprovalLevelRepository, requestID string) ([]*entity.ApprovalLevelRecord, error) {
	records, err := repo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, entity.NewCollaboratorError("load approval levels", err)
	}
	return records, nil
}
