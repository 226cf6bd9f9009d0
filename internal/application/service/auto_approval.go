package service

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/workflow"
)

// AutoApprovalResult reports whether the self-request short-circuit fired
type AutoApprovalResult struct {
	AutoApproved  bool
	Record        *entity.ApprovalLevelRecord
	OverallStatus string
}

// AutoApprovalResolver approves level 1 when the submitter is its primary or backup approver
type AutoApprovalResolver interface {
	Resolve(ctx context.Context, requestID, submitterID string) (*AutoApprovalResult, error)
}

type autoApprovalResolverImpl struct {
	requestRepo port.RequestRepository
	levelRepo   port.ApprovalLevelRepository
	txManager   port.TransactionManager
	logger      Logger
	now         Clock
}

// NewAutoApprovalResolver creates a new AutoApprovalResolver. A nil clock uses time.Now.
func NewAutoApprovalResolver(
	requestRepo port.RequestRepository,
	levelRepo port.ApprovalLevelRepository,
	txManager port.TransactionManager,
	logger Logger,
	now Clock,
) AutoApprovalResolver {
	if now == nil {
		now = time.Now
	}
	return &autoApprovalResolverImpl{
		requestRepo: requestRepo,
		levelRepo:   levelRepo,
		txManager:   txManager,
		logger:      logger,
		now:         now,
	}
}

// Resolve matches the submitter against the level 1 snapshot only; levels 2 and 3 never auto-approve
func (r *autoApprovalResolverImpl) Resolve(ctx context.Context, requestID, submitterID string) (*AutoApprovalResult, error) {
	result := &AutoApprovalResult{}

	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		request, err := loadRequest(txCtx, r.requestRepo, requestID)
		if err != nil {
			return err
		}
		result.OverallStatus = request.OverallStatus

		record, err := r.levelRepo.GetByLevel(txCtx, requestID, entity.LevelOne)
		if errors.Is(err, port.ErrNotFound) {
			return nil
		}
		if err != nil {
			return entity.NewCollaboratorError("load level 1", err)
		}
		if record.Status != entity.LevelStatusPending || !record.Assigned.Matches(submitterID) {
			return nil
		}

		decision := entity.LevelDecision{
			ActorID:       submitterID,
			ActorName:     entity.SelfApproverName,
			Notes:         entity.SelfApprovalNotes,
			IsSelfRequest: true,
			At:            r.now(),
		}
		if err := r.levelRepo.Approve(txCtx, record.ID, decision); err != nil {
			return levelWriteError(record, err)
		}
		applyApproval(record, decision)

		current := workflow.State(request.OverallStatus)
		next, err := workflow.Next(txCtx, workflow.BuildRequestMachine(current), workflow.TriggerAdvance)
		if err != nil {
			return entity.NewTransitionError("request %s cannot advance while %s", request.RequestNumber, request.OverallStatus)
		}
		if next != current {
			if err := r.requestRepo.TransitionStatus(txCtx, requestID, current.String(), next.String(), decision.At); err != nil {
				return entity.NewCollaboratorError("update request status", err)
			}
		}

		result.AutoApproved = true
		result.Record = record
		result.OverallStatus = next.String()
		return nil
	})
	if err != nil {
		return &AutoApprovalResult{}, err
	}

	if result.AutoApproved {
		r.logger.Info("Level 1 auto-approved for self-request", "request_id", requestID, "submitter", submitterID)
	}
	return result, nil
}
