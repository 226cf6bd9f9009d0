package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/workflow"
	"github.com/garyjia/budget-approval/pkg/utils"
)

// CreateDraftInput is the payload for creating a draft request
type CreateDraftInput struct {
	BudgetID    string `json:"budget_id" validate:"required"`
	CreatedBy   string `json:"created_by" validate:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// LineItemInput is one employee payment line as submitted by clients
type LineItemInput struct {
	EmployeeID      string          `json:"employee_id" validate:"required"`
	EmployeeName    string          `json:"employee_name" validate:"required"`
	EmployeeEmail   string          `json:"employee_email" validate:"omitempty,email"`
	Department      string          `json:"department"`
	Position        string          `json:"position"`
	Geo             string          `json:"geo"`
	Location        string          `json:"location"`
	HireDate        string          `json:"hire_date"`
	TerminationDate string          `json:"termination_date"`
	EmployeeStatus  string          `json:"employee_status"`
	ItemType        string          `json:"item_type"`
	Amount          decimal.Decimal `json:"amount"`
	IsDeduction     bool            `json:"is_deduction"`
	Notes           string          `json:"notes"`
}

// RequestDetail is the read model of a request with its freshly computed stage
type RequestDetail struct {
	Request   *entity.ApprovalRequest       `json:"request"`
	LineItems []*entity.LineItem            `json:"line_items"`
	Levels    []*entity.ApprovalLevelRecord `json:"approval_levels"`
	Activity  []*entity.ActivityLog         `json:"activity"`
	Stage     workflow.Stage                `json:"stage"`
	NetAmount decimal.Decimal               `json:"net_amount"`
}

// RequestService manages drafts, line items and the request read model
type RequestService interface {
	CreateDraft(ctx context.Context, input CreateDraftInput) (*entity.ApprovalRequest, error)
	AddLineItem(ctx context.Context, requestID, actorID string, input LineItemInput) (*entity.LineItem, error)
	BulkAddLineItems(ctx context.Context, requestID, actorID string, inputs []LineItemInput) ([]*entity.LineItem, error)
	ImportLineItems(ctx context.Context, requestID, actorID string, r io.Reader) ([]*entity.LineItem, error)
	ExportRequest(ctx context.Context, requestID string, w io.Writer) error
	GetRequest(ctx context.Context, requestID string) (*RequestDetail, error)
}

type requestServiceImpl struct {
	requestRepo  port.RequestRepository
	budgetRepo   port.BudgetRepository
	lineItemRepo port.LineItemRepository
	levelRepo    port.ApprovalLevelRepository
	activityRepo port.ActivityRepository
	numbers      RequestNumberGenerator
	importer     port.LineItemImporter
	exporter     port.RequestExporter
	txManager    port.TransactionManager
	logger       Logger
	now          Clock
}

// RequestServiceDeps groups the collaborators of RequestService
type RequestServiceDeps struct {
	RequestRepo  port.RequestRepository
	BudgetRepo   port.BudgetRepository
	LineItemRepo port.LineItemRepository
	LevelRepo    port.ApprovalLevelRepository
	ActivityRepo port.ActivityRepository
	Numbers      RequestNumberGenerator
	Importer     port.LineItemImporter
	Exporter     port.RequestExporter
	TxManager    port.TransactionManager
	Logger       Logger
	Now          Clock
}

// NewRequestService creates a new RequestService
func NewRequestService(deps RequestServiceDeps) RequestService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &requestServiceImpl{
		requestRepo:  deps.RequestRepo,
		budgetRepo:   deps.BudgetRepo,
		lineItemRepo: deps.LineItemRepo,
		levelRepo:    deps.LevelRepo,
		activityRepo: deps.ActivityRepo,
		numbers:      deps.Numbers,
		importer:     deps.Importer,
		exporter:     deps.Exporter,
		txManager:    deps.TxManager,
		logger:       deps.Logger,
		now:          deps.Now,
	}
}

// CreateDraft stores a new draft request against an active budget
func (s *requestServiceImpl) CreateDraft(ctx context.Context, input CreateDraftInput) (*entity.ApprovalRequest, error) {
	if fields := utils.ValidateStruct(input); fields != nil {
		return nil, entity.NewFieldError(fields)
	}

	budget, err := loadBudget(ctx, s.budgetRepo, input.BudgetID)
	if err != nil {
		return nil, err
	}
	if status := budget.EffectiveStatus(s.now()); status != entity.BudgetStatusActive {
		return nil, entity.NewValidationError("budget %s is %s", budget.Name, status)
	}

	now := s.now()
	request := &entity.ApprovalRequest{
		ID:                 uuid.NewString(),
		RequestNumber:      s.numbers.Next(ctx),
		BudgetID:           budget.ID,
		Title:              utils.SanitizeString(input.Title),
		Description:        utils.SanitizeString(input.Description),
		OverallStatus:      entity.RequestStatusDraft,
		TotalRequestAmount: decimal.Zero,
		CreatedBy:          input.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, entity.NewCollaboratorError("create request", err)
	}

	s.recordActivity(ctx, request.ID, entity.ActivityRequestCreated, input.CreatedBy,
		fmt.Sprintf("Draft %s created for budget %s", request.RequestNumber, budget.Name))
	s.logger.Info("Draft request created", "request_id", request.ID, "request_number", request.RequestNumber)
	return request, nil
}

// AddLineItem appends a single item
func (s *requestServiceImpl) AddLineItem(ctx context.Context, requestID, actorID string, input LineItemInput) (*entity.LineItem, error) {
	items, err := s.BulkAddLineItems(ctx, requestID, actorID, []LineItemInput{input})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// BulkAddLineItems validates every input first, then appends them with numbers continuing the request's sequence
func (s *requestServiceImpl) BulkAddLineItems(ctx context.Context, requestID, actorID string, inputs []LineItemInput) ([]*entity.LineItem, error) {
	if len(inputs) == 0 {
		return nil, entity.NewValidationError("at least one line item is required")
	}

	items := make([]*entity.LineItem, 0, len(inputs))
	for i, input := range inputs {
		if fields := utils.ValidateStruct(input); fields != nil {
			return nil, entity.NewFieldError(prefixFields(fields, i, len(inputs)))
		}
		if input.Amount.IsNegative() {
			return nil, entity.NewFieldError(prefixFields(map[string]string{"amount": "must not be negative"}, i, len(inputs)))
		}
		items = append(items, input.toEntity())
	}

	return s.appendItems(ctx, requestID, actorID, items)
}

// ImportLineItems parses an uploaded workbook and appends its rows
func (s *requestServiceImpl) ImportLineItems(ctx context.Context, requestID, actorID string, r io.Reader) ([]*entity.LineItem, error) {
	if s.importer == nil {
		return nil, entity.NewValidationError("line item import is not available")
	}
	parsed, err := s.importer.ParseLineItems(r)
	if err != nil {
		return nil, entity.NewValidationError("cannot read line items: %v", err)
	}
	if len(parsed) == 0 {
		return nil, entity.NewValidationError("the uploaded file contains no line items")
	}

	inputs := make([]LineItemInput, 0, len(parsed))
	for _, item := range parsed {
		inputs = append(inputs, inputFromEntity(item))
	}
	return s.BulkAddLineItems(ctx, requestID, actorID, inputs)
}

func (s *requestServiceImpl) appendItems(ctx context.Context, requestID, actorID string, items []*entity.LineItem) ([]*entity.LineItem, error) {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		request, err := loadRequest(txCtx, s.requestRepo, requestID)
		if err != nil {
			return err
		}
		if request.OverallStatus != entity.RequestStatusDraft {
			return entity.NewTransitionError("line items cannot be added while request is %s", request.OverallStatus)
		}

		existing, err := s.lineItemRepo.GetByRequestID(txCtx, requestID)
		if err != nil {
			return entity.NewCollaboratorError("load line items", err)
		}

		next := entity.MaxItemNumber(existing) + 1
		now := s.now()
		for _, item := range items {
			item.ID = uuid.NewString()
			item.RequestID = requestID
			item.ItemNumber = next
			item.CreatedAt = now
			next++
		}

		if err := s.lineItemRepo.CreateBatch(txCtx, items); err != nil {
			return entity.NewCollaboratorError("create line items", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, requestID, entity.ActivityItemsAdded, actorID,
		fmt.Sprintf("%d line item(s) added, numbers %d-%d", len(items), items[0].ItemNumber, items[len(items)-1].ItemNumber))
	s.logger.Info("Line items added", "request_id", requestID, "count", len(items))
	return items, nil
}

// ExportRequest writes the request detail through the configured exporter
func (s *requestServiceImpl) ExportRequest(ctx context.Context, requestID string, w io.Writer) error {
	if s.exporter == nil {
		return entity.NewValidationError("request export is not available")
	}
	detail, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	budget, err := loadBudget(ctx, s.budgetRepo, detail.Request.BudgetID)
	if err != nil {
		return err
	}

	export := &port.RequestExport{
		Request:   detail.Request,
		Budget:    budget,
		LineItems: detail.LineItems,
		Levels:    detail.Levels,
		Stage:     detail.Stage.String(),
	}
	if err := s.exporter.WriteRequest(w, export); err != nil {
		return entity.NewCollaboratorError("export request", err)
	}
	return nil
}

// GetRequest loads the request with its items, ledger and activity and computes its stage
func (s *requestServiceImpl) GetRequest(ctx context.Context, requestID string) (*RequestDetail, error) {
	request, err := loadRequest(ctx, s.requestRepo, requestID)
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
	activity, err := s.activityRepo.ListByRequestID(ctx, requestID)
	if err != nil {
		return nil, entity.NewCollaboratorError("load activity", err)
	}

	return &RequestDetail{
		Request:   request,
		LineItems: items,
		Levels:    levels,
		Activity:  activity,
		Stage:     workflow.ComputeStage(levels, request.OverallStatus),
		NetAmount: entity.NetAmount(items),
	}, nil
}

func (s *requestServiceImpl) recordActivity(ctx context.Context, requestID, action, actorID, details string) {
	activity := &entity.ActivityLog{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Action:    action,
		ActorID:   actorID,
		Details:   details,
		CreatedAt: s.now(),
	}
	if err := s.activityRepo.Create(ctx, activity); err != nil {
		s.logger.Warn("Failed to record activity", "request_id", requestID, "action", action, "error", err)
	}
}

// itemTypeAliases maps accepted spellings onto the item type vocabulary
var itemTypeAliases = map[string]string{
	"bonus":          entity.ItemTypeBonus,
	"bonuses":        entity.ItemTypeBonus,
	"incentive":      entity.ItemTypeIncentive,
	"incentives":     entity.ItemTypeIncentive,
	"allowance":      entity.ItemTypeAllowance,
	"allowances":     entity.ItemTypeAllowance,
	"overtime":       entity.ItemTypeOvertime,
	"ot":             entity.ItemTypeOvertime,
	"commission":     entity.ItemTypeCommission,
	"commissions":    entity.ItemTypeCommission,
	"reimbursement":  entity.ItemTypeReimbursement,
	"reimbursements": entity.ItemTypeReimbursement,
	"adjustment":     entity.ItemTypeAdjustment,
	"adjustments":    entity.ItemTypeAdjustment,
	"deduction":      entity.ItemTypeDeduction,
	"deductions":     entity.ItemTypeDeduction,
}

// NormalizeItemType maps free text onto the item type vocabulary. Unknown text becomes bonus.
func NormalizeItemType(raw string) string {
	key := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	key = strings.NewReplacer("-", "", "_", "").Replace(key)
	if itemType, ok := itemTypeAliases[key]; ok {
		return itemType
	}
	return entity.ItemTypeBonus
}

func (in LineItemInput) toEntity() *entity.LineItem {
	itemType := NormalizeItemType(in.ItemType)
	return &entity.LineItem{
		EmployeeID:      strings.TrimSpace(in.EmployeeID),
		EmployeeName:    utils.SanitizeString(in.EmployeeName),
		EmployeeEmail:   strings.TrimSpace(in.EmployeeEmail),
		Department:      utils.SanitizeString(in.Department),
		Position:        utils.SanitizeString(in.Position),
		Geo:             utils.SanitizeString(in.Geo),
		Location:        utils.SanitizeString(in.Location),
		HireDate:        strings.TrimSpace(in.HireDate),
		TerminationDate: strings.TrimSpace(in.TerminationDate),
		EmployeeStatus:  utils.SanitizeString(in.EmployeeStatus),
		ItemType:        itemType,
		Amount:          in.Amount,
		IsDeduction:     in.IsDeduction || itemType == entity.ItemTypeDeduction,
		Notes:           utils.SanitizeString(in.Notes),
	}
}

func inputFromEntity(item *entity.LineItem) LineItemInput {
	return LineItemInput{
		EmployeeID:      item.EmployeeID,
		EmployeeName:    item.EmployeeName,
		EmployeeEmail:   item.EmployeeEmail,
		Department:      item.Department,
		Position:        item.Position,
		Geo:             item.Geo,
		Location:        item.Location,
		HireDate:        item.HireDate,
		TerminationDate: item.TerminationDate,
		EmployeeStatus:  item.EmployeeStatus,
		ItemType:        item.ItemType,
		Amount:          item.Amount,
		IsDeduction:     item.IsDeduction,
		Notes:           item.Notes,
	}
}

// prefixFields keys field errors by item index when more than one item was submitted
func prefixFields(fields map[string]string, index, total int) map[string]string {
	if total == 1 {
		return fields
	}
	prefixed := make(map[string]string, len(fields))
	for k, v := range fields {
		prefixed[fmt.Sprintf("items[%d].%s", index, k)] = v
	}
	return prefixed
}
