package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/scope"
)

// maxListedViolations caps the employees named in a scope violation message
const maxListedViolations = 5

// missingBucket labels an item whose hire date is absent or unparseable
const missingBucket = "missing/invalid"

// ScopeVerdict is the outcome of a scope gate
type ScopeVerdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ScopeValidator checks line items against the budget's location and tenure scope
type ScopeValidator interface {
	ValidateLocationScope(ctx context.Context, requestID string) (*ScopeVerdict, error)
	ValidateTenureScope(ctx context.Context, requestID string) (*ScopeVerdict, error)
}

type scopeValidatorImpl struct {
	requestRepo  port.RequestRepository
	budgetRepo   port.BudgetRepository
	lineItemRepo port.LineItemRepository
	now          Clock
}

// NewScopeValidator creates a new ScopeValidator. A nil clock uses time.Now.
func NewScopeValidator(
	requestRepo port.RequestRepository,
	budgetRepo port.BudgetRepository,
	lineItemRepo port.LineItemRepository,
	now Clock,
) ScopeValidator {
	if now == nil {
		now = time.Now
	}
	return &scopeValidatorImpl{
		requestRepo:  requestRepo,
		budgetRepo:   budgetRepo,
		lineItemRepo: lineItemRepo,
		now:          now,
	}
}

// ValidateLocationScope checks every item's location against the budget's location list
func (v *scopeValidatorImpl) ValidateLocationScope(ctx context.Context, requestID string) (*ScopeVerdict, error) {
	budget, items, err := v.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return CheckLocationScope(budget, items), nil
}

// ValidateTenureScope checks every item's derived tenure bucket against the budget's tenure groups
func (v *scopeValidatorImpl) ValidateTenureScope(ctx context.Context, requestID string) (*ScopeVerdict, error) {
	budget, items, err := v.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return CheckTenureScope(budget, items, v.now()), nil
}

func (v *scopeValidatorImpl) load(ctx context.Context, requestID string) (*entity.BudgetConfiguration, []*entity.LineItem, error) {
	request, err := loadRequest(ctx, v.requestRepo, requestID)
	if err != nil {
		return nil, nil, err
	}
	budget, err := loadBudget(ctx, v.budgetRepo, request.BudgetID)
	if err != nil {
		return nil, nil, err
	}
	items, err := v.lineItemRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, nil, entity.NewCollaboratorError("load line items", err)
	}
	return budget, items, nil
}

// CheckLocationScope is the pure location gate
func CheckLocationScope(budget *entity.BudgetConfiguration, items []*entity.LineItem) *ScopeVerdict {
	allowed := scope.ParseScopeList(budget.Location)
	if allowed.Unrestricted() {
		return &ScopeVerdict{Valid: true}
	}

	var violations []string
	for _, item := range items {
		if allowed.Contains(item.Location) {
			continue
		}
		location := scope.NormalizeToken(item.Location)
		if location == "" {
			location = "missing"
		}
		violations = append(violations, fmt.Sprintf("%s (%s)", employeeLabel(item), location))
	}

	if len(violations) == 0 {
		return &ScopeVerdict{Valid: true}
	}
	return &ScopeVerdict{
		Reason: fmt.Sprintf("Location scope violation: %d line item(s) outside allowed locations [%s]: %s",
			len(violations), strings.Join(allowed.Tokens, ", "), summarizeViolations(violations)),
	}
}

// CheckTenureScope is the pure tenure gate evaluated at now
func CheckTenureScope(budget *entity.BudgetConfiguration, items []*entity.LineItem, now time.Time) *ScopeVerdict {
	allowed := scope.CanonicalBuckets(scope.ParseScopeList(budget.TenureGroup))
	if allowed.Unrestricted() {
		return &ScopeVerdict{Valid: true}
	}

	var violations []string
	for _, item := range items {
		bucket, ok := scope.BucketForHireDate(item.HireDate, now)
		if ok && allowed.Contains(bucket) {
			continue
		}
		if !ok {
			bucket = missingBucket
		}
		violations = append(violations, fmt.Sprintf("%s (%s)", employeeLabel(item), bucket))
	}

	if len(violations) == 0 {
		return &ScopeVerdict{Valid: true}
	}
	return &ScopeVerdict{
		Reason: fmt.Sprintf("Tenure scope violation: %d line item(s) outside allowed tenure groups [%s]: %s",
			len(violations), strings.Join(allowed.Tokens, ", "), summarizeViolations(violations)),
	}
}

func employeeLabel(item *entity.LineItem) string {
	switch {
	case item.EmployeeID != "":
		return item.EmployeeID
	case item.EmployeeName != "":
		return item.EmployeeName
	default:
		return fmt.Sprintf("item #%d", item.ItemNumber)
	}
}

func summarizeViolations(violations []string) string {
	if len(violations) <= maxListedViolations {
		return strings.Join(violations, ", ")
	}
	return strings.Join(violations[:maxListedViolations], ", ") + ", …"
}
