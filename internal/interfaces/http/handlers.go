package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/similarity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response. Code carries the reason code of a rejected operation.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ExpenseRequest is the body of expense create and update calls
type ExpenseRequest struct {
	ReportID    *int64  `json:"report_id"`
	Vendor      string  `json:"vendor" binding:"required,max=200"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"omitempty,currency"`
	ExpenseDate string  `json:"expense_date" binding:"required"`
	InvoiceID   string  `json:"invoice_id" binding:"max=100"`
	InvoiceDate string  `json:"invoice_date"`
	Category    string  `json:"category" binding:"max=100"`
	Project     string  `json:"project" binding:"max=100"`
	CostCentre  string  `json:"cost_centre" binding:"max=100"`
	ReceiptPath string  `json:"receipt_path"`
}

// ReportRequest is the body of report creation
type ReportRequest struct {
	Name     string `json:"name" binding:"required,max=200"`
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// DecisionBody is the body of an approver decision
type DecisionBody struct {
	Level    int    `json:"level" binding:"required,min=1"`
	Decision string `json:"decision" binding:"required,decision"`
	Comment  string `json:"comment" binding:"max=2000"`
}

// ApproverBody is the body of an extra-approver assignment
type ApproverBody struct {
	Level  int   `json:"level" binding:"required,min=1"`
	UserID int64 `json:"user_id" binding:"required,min=1"`
}

// ExpenseResponse wraps an expense with a human-readable duplicate warning
type ExpenseResponse struct {
	Expense *entity.Expense `json:"expense"`
	Warning string          `json:"warning,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateExpense handles POST /api/expenses
func (h *Handlers) CreateExpense(c *gin.Context) {
	var req ExpenseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	e, ok := h.toExpense(c, &req)
	if !ok {
		return
	}
	e.UserID = currentUser(c)

	created, err := h.services.Expenses.Create(c.Request.Context(), e)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: toExpenseResponse(created)})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	e, err := h.services.Expenses.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toExpenseResponse(e)})
}

// UpdateExpense handles PUT /api/expenses/:id; only the owner may edit
func (h *Handlers) UpdateExpense(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req ExpenseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	e, ok := h.toExpense(c, &req)
	if !ok {
		return
	}

	existing, err := h.services.Expenses.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if existing.UserID != currentUser(c) {
		abort(c, http.StatusForbidden, "FORBIDDEN", "only the owner may edit an expense")
		return
	}

	e.ID = id
	updated, err := h.services.Expenses.Update(c.Request.Context(), e)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toExpenseResponse(updated)})
}

// CheckExpenseDuplicates handles POST /api/expenses/:id/duplicate-check
func (h *Handlers) CheckExpenseDuplicates(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.services.Duplicates.RunDuplicateCheck(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ScanReceipt handles POST /api/receipts (multipart field "file")
func (h *Handlers) ScanReceipt(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", "file is required")
		return
	}
	if header.Size > service.MaxReceiptSize {
		abort(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", "receipt exceeds the upload limit")
		return
	}

	f, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, service.MaxReceiptSize+1))
	if err != nil {
		h.fail(c, err)
		return
	}

	scan, err := h.services.Receipts.Scan(c.Request.Context(), currentUser(c), header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: scan})
}

// CreateReport handles POST /api/reports
func (h *Handlers) CreateReport(c *gin.Context) {
	var req ReportRequest
	if !h.bindJSON(c, &req) {
		return
	}
	from, ok := optionalDate(c, "from_date", req.FromDate)
	if !ok {
		return
	}
	to, ok := optionalDate(c, "to_date", req.ToDate)
	if !ok {
		return
	}

	report, err := h.services.Reports.Create(c.Request.Context(), currentUser(c), req.Name, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: report})
}

// GetReport handles GET /api/reports/:id
func (h *Handlers) GetReport(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.services.Reports.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// CheckReportDuplicates handles POST /api/reports/:id/duplicate-check
func (h *Handlers) CheckReportDuplicates(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.services.Duplicates.RunReportDuplicateCheck(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	detail, err := h.services.Reports.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// SubmitReport handles POST /api/reports/:id/submit
func (h *Handlers) SubmitReport(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	transition, err := h.services.Approvals.Submit(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: transition})
}

// DecideReport handles POST /api/reports/:id/decisions
func (h *Handlers) DecideReport(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var body DecisionBody
	if !h.bindJSON(c, &body) {
		return
	}

	transition, err := h.services.Approvals.Decide(c.Request.Context(), workflow.DecisionRequest{
		RequestType: entity.RequestTypeExpenseReport,
		RequestID:   id,
		Level:       body.Level,
		ApproverID:  currentUser(c),
		Decision:    body.Decision,
		Comment:     body.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: transition})
}

// AddApprover handles POST /api/reports/:id/approvers
func (h *Handlers) AddApprover(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var body ApproverBody
	if !h.bindJSON(c, &body) {
		return
	}

	err := h.services.Approvals.AddApprover(c.Request.Context(), entity.RequestTypeExpenseReport, id, body.Level, body.UserID, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// GetApproval handles GET /api/reports/:id/approval
func (h *Handlers) GetApproval(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	instance, err := h.services.Approvals.GetInstance(c.Request.Context(), entity.RequestTypeExpenseReport, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := h.services.Notifications.ListByUser(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.services.Notifications.MarkRead(c.Request.Context(), id, currentUser(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

func (h *Handlers) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return false
	}
	return true
}

func (h *Handlers) pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", "invalid "+name+": "+raw)
		return 0, false
	}
	return id, true
}

func (h *Handlers) toExpense(c *gin.Context, req *ExpenseRequest) (*entity.Expense, bool) {
	date, ok := similarity.ParseDate(req.ExpenseDate)
	if !ok {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", "invalid expense_date")
		return nil, false
	}
	e := &entity.Expense{
		ReportID:    req.ReportID,
		Vendor:      req.Vendor,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ExpenseDate: date,
		InvoiceID:   req.InvoiceID,
		Category:    req.Category,
		Project:     req.Project,
		CostCentre:  req.CostCentre,
		ReceiptPath: req.ReceiptPath,
	}
	if req.InvoiceDate != "" {
		invoiceDate, ok := similarity.ParseDate(req.InvoiceDate)
		if !ok {
			abort(c, http.StatusBadRequest, "INVALID_INPUT", "invalid invoice_date")
			return nil, false
		}
		e.InvoiceDate = &invoiceDate
	}
	return e, true
}

func optionalDate(c *gin.Context, field, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, ok := similarity.ParseDate(raw)
	if !ok {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", "invalid "+field)
		return time.Time{}, false
	}
	return t, true
}

func toExpenseResponse(e *entity.Expense) ExpenseResponse {
	resp := ExpenseResponse{Expense: e}
	if e.DuplicateFlag != nil && e.DuplicateReason != nil {
		resp.Warning = "possible duplicate (" + string(*e.DuplicateFlag) + "): matched on " + *e.DuplicateReason
	}
	return resp
}

var statusByReason = map[string]int{
	domainwf.ReasonNotFound:             http.StatusNotFound,
	domainwf.ReasonConflict:             http.StatusConflict,
	domainwf.ReasonInvalidState:         http.StatusConflict,
	domainwf.ReasonWrongLevel:           http.StatusConflict,
	domainwf.ReasonUnauthorizedApprover: http.StatusForbidden,
	domainwf.ReasonInvalidDecision:      http.StatusBadRequest,
	domainwf.ReasonNoApprovalMatrix:     http.StatusUnprocessableEntity,
}

var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrExpenseNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrReportNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrExpenseNotEditable, http.StatusConflict, "NOT_EDITABLE"},
	{service.ErrInvalidExpense, http.StatusBadRequest, "INVALID_INPUT"},
	{service.ErrInvalidDimension, http.StatusBadRequest, "INVALID_INPUT"},
	{service.ErrInvalidRange, http.StatusBadRequest, "INVALID_INPUT"},
	{service.ErrUnsupportedReceipt, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
	{service.ErrReceiptTooLarge, http.StatusRequestEntityTooLarge, "TOO_LARGE"},
	{service.ErrReceiptParse, http.StatusUnprocessableEntity, "UNPARSEABLE"},
}

// fail maps err onto a status and reason code; anything unrecognised is logged and hidden as a 500
func (h *Handlers) fail(c *gin.Context, err error) {
	if code := domainwf.ReasonCode(err); code != "" {
		h.logger.Warn("Approval operation rejected", "path", c.FullPath(), "code", code, "error", err)
		abort(c, statusByReason[code], code, err.Error())
		return
	}
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			abort(c, se.status, se.code, err.Error())
			return
		}
	}

	h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	abort(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: message, Code: code})
}
