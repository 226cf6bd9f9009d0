package service

import (
	"context"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/workflow"
)

// InsightsService asks the AI generator for an approver-facing summary of a request
type InsightsService interface {
	Insights(ctx context.Context, requestID string) (*port.InsightsResult, error)
}

type insightsServiceImpl struct {
	requestRepo  port.RequestRepository
	budgetRepo   port.BudgetRepository
	lineItemRepo port.LineItemRepository
	levelRepo    port.ApprovalLevelRepository
	generator    port.InsightsGenerator
	logger       Logger
}

// NewInsightsService creates a new InsightsService. A nil generator disables insights.
func NewInsightsService(
	requestRepo port.RequestRepository,
	budgetRepo port.BudgetRepository,
	lineItemRepo port.LineItemRepository,
	levelRepo port.ApprovalLevelRepository,
	generator port.InsightsGenerator,
	logger Logger,
) InsightsService {
	return &insightsServiceImpl{
		requestRepo:  requestRepo,
		budgetRepo:   budgetRepo,
		lineItemRepo: lineItemRepo,
		levelRepo:    levelRepo,
		generator:    generator,
		logger:       logger,
	}
}

func (s *insightsServiceImpl) Insights(ctx context.Context, requestID string) (*port.InsightsResult, error) {
	if s.generator == nil {
		return nil, entity.NewValidationError("AI insights are disabled")
	}

	request, err := loadRequest(ctx, s.requestRepo, requestID)
	if err != nil {
		return nil, err
	}
	budget, err := loadBudget(ctx, s.budgetRepo, request.BudgetID)
	if err != nil {
		return nil, err
	}
	items, err := s.lineItemRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, entity.NewCollaboratorError("load line items", err)
	}
	levels, err := loadLevels(ctx, s.levelRepo, requestID)
	if err != nil {
		return nil, err
	}

	result, err := s.generator.GenerateInsights(ctx, &port.InsightsInput{
		Request:   request,
		Budget:    budget,
		LineItems: items,
		Levels:    levels,
		Stage:     workflow.ComputeStage(levels, request.OverallStatus).String(),
	})
	if err != nil {
		s.logger.Error("Insights generation failed", "request_id", requestID, "error", err)
		return nil, entity.NewCollaboratorError("generate insights", err)
	}
	return result, nil
}
