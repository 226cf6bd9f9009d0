package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/budget-approval/internal/application/service"
	"github.com/garyjia/budget-approval/internal/application/workflow"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services       Services
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, maxUploadBytes int64, logger Logger) *Handlers {
	return &Handlers{
		services:       services,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListBudgetsRequest represents query parameters for listing budgets
type ListBudgetsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// ListNotificationsRequest represents query parameters for a user's inbox
type ListNotificationsRequest struct {
	Unread bool `form:"unread"`
	Limit  int  `form:"limit"`
}

// StartDateRequest is the body of PUT /budgets/:id/start-date
type StartDateRequest struct {
	StartDate time.Time `json:"start_date"`
}

// AddLineItemRequest is one line item plus the acting user
type AddLineItemRequest struct {
	ActorID string `json:"actor_id"`
	service.LineItemInput
}

// BulkLineItemsRequest is a batch of line items plus the acting user
type BulkLineItemsRequest struct {
	ActorID string                  `json:"actor_id"`
	Items   []service.LineItemInput `json:"items"`
}

// SubmitRequest is the body of POST /requests/:id/submit
type SubmitRequest struct {
	SubmittedBy string `json:"submitted_by"`
}

// MarkReadRequest is the body of POST /notifications/:id/read
type MarkReadRequest struct {
	RecipientID string `json:"recipient_id"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, workflow.OK("", HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}))
}

// CreateBudget handles POST /api/v1/budgets
func (h *Handlers) CreateBudget(c *gin.Context) {
	var input service.CreateBudgetInput
	if !h.bindJSON(c, &input) {
		return
	}

	detail, err := h.services.Budgets.CreateBudget(c.Request.Context(), input)
	if err != nil {
		h.fail(c, "create budget", err)
		return
	}
	c.JSON(http.StatusCreated, workflow.OK("Budget created", detail))
}

// ListBudgets handles GET /api/v1/budgets
func (h *Handlers) ListBudgets(c *gin.Context) {
	var req ListBudgetsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, "list budgets", entity.NewValidationError("invalid query parameters"))
		return
	}

	budgets, err := h.services.Budgets.ListBudgets(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.fail(c, "list budgets", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("", budgets))
}

// GetBudget handles GET /api/v1/budgets/:id
func (h *Handlers) GetBudget(c *gin.Context) {
	detail, err := h.services.Budgets.GetBudget(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get budget", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("", detail))
}

// UpsertApprover handles PUT /api/v1/budgets/:id/approvers/:level
func (h *Handlers) UpsertApprover(c *gin.Context) {
	level, ok := h.levelParam(c)
	if !ok {
		return
	}
	var input service.ApproverInput
	if !h.bindJSON(c, &input) {
		return
	}
	input.ApprovalLevel = level

	approver, err := h.services.Budgets.UpsertApprover(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, "upsert approver", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("Approver saved", approver))
}

// DeactivateBudget handles POST /api/v1/budgets/:id/deactivate
func (h *Handlers) DeactivateBudget(c *gin.Context) {
	if err := h.services.Budgets.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "deactivate budget", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("Budget deactivated", nil))
}

// UpdateBudgetStartDate handles PUT /api/v1/budgets/:id/start-date
func (h *Handlers) UpdateBudgetStartDate(c *gin.Context) {
	var req StartDateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.services.Budgets.UpdateStartDate(c.Request.Context(), c.Param("id"), req.StartDate); err != nil {
		h.fail(c, "update budget start date", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("Start date updated", nil))
}

// CreateRequest handles POST /api/v1/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var input service.CreateDraftInput
	if !h.bindJSON(c, &input) {
		return
	}

	request, err := h.services.Requests.CreateDraft(c.Request.Context(), input)
	if err != nil {
		h.fail(c, "create request", err)
		return
	}
	c.JSON(http.StatusCreated, workflow.OK("Draft created", request))
}

// GetRequest handles GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	detail, err := h.services.Requests.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get request", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("", detail))
}

// AddLineItem handles POST /api/v1/requests/:id/items
func (h *Handlers) AddLineItem(c *gin.Context) {
	var req AddLineItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.services.Requests.AddLineItem(c.Request.Context(), c.Param("id"), req.ActorID, req.LineItemInput)
	if err != nil {
		h.fail(c, "add line item", err)
		return
	}
	c.JSON(http.StatusCreated, workflow.OK("Line item added", item))
}

// BulkAddLineItems handles POST /api/v1/requests/:id/items/bulk
func (h *Handlers) BulkAddLineItems(c *gin.Context) {
	var req BulkLineItemsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	items, err := h.services.Requests.BulkAddLineItems(c.Request.Context(), c.Param("id"), req.ActorID, req.Items)
	if err != nil {
		h.fail(c, "bulk add line items", err)
		return
	}
	c.JSON(http.StatusCreated, workflow.OK(fmt.Sprintf("%d line items added", len(items)), items))
}

// ImportLineItems handles POST /api/v1/requests/:id/items/import with a multipart "file" field
func (h *Handlers) ImportLineItems(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		h.fail(c, "import line items", entity.NewFieldError(map[string]string{"file": "is required"}))
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, "import line items", entity.NewValidationError("unreadable upload: %s", header.Filename))
		return
	}
	defer file.Close()

	items, err := h.services.Requests.ImportLineItems(c.Request.Context(), c.Param("id"), c.PostForm("actor_id"), file)
	if err != nil {
		h.fail(c, "import line items", err)
		return
	}
	c.JSON(http.StatusCreated, workflow.OK(fmt.Sprintf("%d line items imported", len(items)), items))
}

// ExportRequest handles GET /api/v1/requests/:id/export
func (h *Handlers) ExportRequest(c *gin.Context) {
	requestID := c.Param("id")

	var buf bytes.Buffer
	if err := h.services.Requests.ExportRequest(c.Request.Context(), requestID, &buf); err != nil {
		h.fail(c, "export request", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="request-%s.xlsx"`, requestID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// GetInsights handles GET /api/v1/requests/:id/insights
func (h *Handlers) GetInsights(c *gin.Context) {
	if h.services.Insights == nil {
		h.fail(c, "get insights", entity.NewValidationError("AI insights are disabled"))
		return
	}

	insights, err := h.services.Insights.Insights(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get insights", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("", insights))
}

// SubmitRequest handles POST /api/v1/requests/:id/submit
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var req SubmitRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.respond(c, h.services.Orchestrator.SubmitApprovalRequest(c.Request.Context(), c.Param("id"), req.SubmittedBy))
}

// ApproveLevel handles POST /api/v1/requests/:id/levels/:level/approve
func (h *Handlers) ApproveLevel(c *gin.Context) {
	level, ok := h.levelParam(c)
	if !ok {
		return
	}
	var input service.ApprovalInput
	if !h.bindJSON(c, &input) {
		return
	}
	h.respond(c, h.services.Orchestrator.ApproveRequestAtLevel(c.Request.Context(), c.Param("id"), level, input))
}

// RejectLevel handles POST /api/v1/requests/:id/levels/:level/reject
func (h *Handlers) RejectLevel(c *gin.Context) {
	level, ok := h.levelParam(c)
	if !ok {
		return
	}
	var input service.RejectionInput
	if !h.bindJSON(c, &input) {
		return
	}
	h.respond(c, h.services.Orchestrator.RejectRequestAtLevel(c.Request.Context(), c.Param("id"), level, input))
}

// CompletePayment handles POST /api/v1/requests/:id/complete-payment
func (h *Handlers) CompletePayment(c *gin.Context) {
	var input service.CompletionInput
	if !h.bindJSON(c, &input) {
		return
	}
	h.respond(c, h.services.Orchestrator.CompletePayrollPayment(c.Request.Context(), c.Param("id"), input))
}

// ListNotifications handles GET /api/v1/users/:id/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	var req ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, "list notifications", entity.NewValidationError("invalid query parameters"))
		return
	}

	notifications, err := h.services.Inbox.List(c.Request.Context(), c.Param("id"), req.Unread, req.Limit)
	if err != nil {
		h.fail(c, "list notifications", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("", notifications))
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	var req MarkReadRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.services.Inbox.MarkRead(c.Request.Context(), c.Param("id"), req.RecipientID); err != nil {
		h.fail(c, "mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, workflow.OK("Notification marked read", nil))
}

func (h *Handlers) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadRequest, workflow.ErrorResult(entity.NewValidationError("invalid request body")))
		return false
	}
	return true
}

func (h *Handlers) levelParam(c *gin.Context) (int, bool) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, workflow.ErrorResult(
			entity.NewFieldError(map[string]string{"approval_level": "must be an integer"})))
		return 0, false
	}
	return level, true
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	result := workflow.ErrorResult(err)
	status := statusFor(result.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "error", err)
	}
	c.JSON(status, result)
}

func (h *Handlers) respond(c *gin.Context, result *workflow.Result) {
	if result.Success {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(statusFor(result.Kind), result)
}

func statusFor(kind entity.ErrorKind) int {
	switch kind {
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
