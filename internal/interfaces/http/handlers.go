package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/exchange"
	"github.com/garyjia/expense-approval/internal/report"
)

// userKey is the gin context key the acting user is stored under.
const userKey = "acting_user"

// Handlers contains all HTTP request handlers
type Handlers struct {
	expenses  *service.ExpenseService
	engine    *workflow.Engine
	rules     *service.RuleService
	users     *service.UserService
	exporter  *report.Exporter
	companies port.CompanyRepository
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	expenses *service.ExpenseService,
	engine *workflow.Engine,
	rules *service.RuleService,
	users *service.UserService,
	exporter *report.Exporter,
	companies port.CompanyRepository,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		expenses:  expenses,
		engine:    engine,
		rules:     rules,
		users:     users,
		exporter:  exporter,
		companies: companies,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RequireUser resolves the acting user from the X-User-ID header set by
// the upstream gateway. Authentication itself happens before this service.
func (h *Handlers) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or malformed X-User-ID header",
			})
			return
		}

		user, err := h.users.Get(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "unknown user",
			})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "user is deactivated",
			})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func actingUser(c *gin.Context) *entity.User {
	return c.MustGet(userKey).(*entity.User)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrAlreadyDecided),
		errors.Is(err, entity.ErrExpenseFinalized),
		errors.Is(err, entity.ErrManagerCycle):
		return http.StatusConflict
	case errors.Is(err, entity.ErrCurrencyUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, entity.ErrInvalidWorkflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrInvalidAmount),
		errors.Is(err, entity.ErrInvalidCategory),
		errors.Is(err, entity.ErrInvalidDate),
		errors.Is(err, entity.ErrInvalidDescription),
		errors.Is(err, entity.ErrInvalidDecision),
		errors.Is(err, entity.ErrInvalidRule),
		errors.Is(err, entity.ErrCommentsRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// SubmitExpenseRequest is the body of POST /api/expenses
type SubmitExpenseRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	CategoryID  int64  `json:"category_id" binding:"required"`
	Description string `json:"description"`
	ExpenseDate string `json:"expense_date" binding:"required"`
}

// SubmitExpense handles POST /api/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	expenseDate, err := time.Parse("2006-01-02", req.ExpenseDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "expense_date must be YYYY-MM-DD"})
		return
	}

	result, err := h.expenses.Submit(c.Request.Context(), service.SubmitInput{
		EmployeeID:  actingUser(c).ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		ExpenseDate: expenseDate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data: gin.H{
			"expense":   result.Expense,
			"approvals": result.Approvals,
		},
	})
}

// ListExpenses handles GET /api/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	limit, offset := pagination(c)

	expenses, err := h.expenses.ListForUser(c.Request.Context(), actingUser(c).ID, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: expenses})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	expense, approvals, err := h.expenses.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"expense":   expense,
			"approvals": approvals,
		},
	})
}

// DecisionRequest is the body of the approve/reject endpoints.
type DecisionRequest struct {
	Comments string `json:"comments"`
}

// Approve handles POST /api/approvals/:id/approve; :id is the expense ID.
func (h *Handlers) Approve(c *gin.Context) {
	h.decide(c, entity.DecisionApprove)
}

// Reject handles POST /api/approvals/:id/reject; :id is the expense ID.
func (h *Handlers) Reject(c *gin.Context) {
	h.decide(c, entity.DecisionReject)
}

func (h *Handlers) decide(c *gin.Context, decision string) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	outcome, err := h.engine.Decide(c.Request.Context(), id, actingUser(c).ID, decision, req.Comments)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"record_status":  outcome.RecordStatus,
			"expense_status": outcome.ExpenseStatus,
		},
	})
}

// PendingApprovals handles GET /api/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	records, err := h.expenses.PendingApprovals(c.Request.Context(), actingUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// ApprovalHistory handles GET /api/approvals/history
func (h *Handlers) ApprovalHistory(c *gin.Context) {
	limit, _ := pagination(c)

	records, err := h.expenses.ApprovalHistory(c.Request.Context(), actingUser(c).ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// ListRules handles GET /api/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.rules.ListActive(c.Request.Context(), actingUser(c).CompanyID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rules})
}

// CreateRuleRequest is the body of POST /api/rules
type CreateRuleRequest struct {
	Name                    string  `json:"name" binding:"required"`
	Description             string  `json:"description"`
	Type                    string  `json:"type" binding:"required"`
	MinAmount               *string `json:"min_amount"`
	MaxAmount               *string `json:"max_amount"`
	RequiredPercentage      int     `json:"required_percentage"`
	SpecificApproverID      *int64  `json:"specific_approver_id"`
	RequiresManagerApproval bool    `json:"requires_manager_approval"`
	Sequence                []int64 `json:"sequence"`
}

// CreateRule handles POST /api/rules. Admin only.
func (h *Handlers) CreateRule(c *gin.Context) {
	user := actingUser(c)
	if user.Role != entity.RoleAdmin {
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "only admins can manage rules"})
		return
	}

	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	rule := &entity.ApprovalRule{
		CompanyID:               user.CompanyID,
		Name:                    req.Name,
		Description:             req.Description,
		Type:                    req.Type,
		RequiredPercentage:      req.RequiredPercentage,
		SpecificApproverID:      req.SpecificApproverID,
		RequiresManagerApproval: req.RequiresManagerApproval,
		Sequence:                req.Sequence,
	}

	var err error
	if rule.MinAmount, err = parseAmount(req.MinAmount); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid min_amount"})
		return
	}
	if rule.MaxAmount, err = parseAmount(req.MaxAmount); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid max_amount"})
		return
	}

	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// ListUsers handles GET /api/users
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.users.ListCompanyUsers(c.Request.Context(), actingUser(c).CompanyID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: users})
}

// AssignManagerRequest is the body of PUT /api/users/:id/manager
type AssignManagerRequest struct {
	ManagerID *int64 `json:"manager_id"`
}

// AssignManager handles PUT /api/users/:id/manager. Admin only.
func (h *Handlers) AssignManager(c *gin.Context) {
	if actingUser(c).Role != entity.RoleAdmin {
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "only admins can assign managers"})
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	var req AssignManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	if err := h.users.AssignManager(c.Request.Context(), id, req.ManagerID); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListCurrencies handles GET /api/currencies
func (h *Handlers) ListCurrencies(c *gin.Context) {
	company, err := h.companies.GetByID(c.Request.Context(), actingUser(c).CompanyID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var extra string
	if company != nil {
		extra = company.Currency
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: exchange.Currencies(extra)})
}

// ExportExpenses handles GET /api/reports/expenses. Managers and admins only.
func (h *Handlers) ExportExpenses(c *gin.Context) {
	user := actingUser(c)
	if !user.CanApprove() {
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "only managers and admins can export reports"})
		return
	}

	f, err := h.exporter.CompanyWorkbook(c.Request.Context(), user.CompanyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("expenses-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("failed to stream report", zap.Error(err))
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func parseAmount(s *string) (*decimal.Decimal, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
