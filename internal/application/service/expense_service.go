package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// SubmitInput carries everything needed to submit an expense.
type SubmitInput struct {
	EmployeeID  int64
	Amount      string
	Currency    string
	CategoryID  int64
	Description string
	ExpenseDate time.Time
}

// SubmitResult reports the created expense and its materialized plan.
type SubmitResult struct {
	Expense   *entity.Expense
	Approvals []*entity.ApprovalRecord
}

// ExpenseService handles expense submission and queries. Submission is the
// only place that talks to the exchange-rate gateway; decisions never do.
type ExpenseService struct {
	expenses   port.ExpenseRepository
	approvals  port.ApprovalRepository
	rules      port.RuleRepository
	users      port.UserRepository
	companies  port.CompanyRepository
	categories port.CategoryRepository
	gateway    port.ExchangeRateGateway
	planner    *workflow.Planner
	tx         port.TransactionManager
	logger     *zap.Logger
}

// NewExpenseService creates an ExpenseService.
func NewExpenseService(
	expenses port.ExpenseRepository,
	approvals port.ApprovalRepository,
	rules port.RuleRepository,
	users port.UserRepository,
	companies port.CompanyRepository,
	categories port.CategoryRepository,
	gateway port.ExchangeRateGateway,
	planner *workflow.Planner,
	tx port.TransactionManager,
	logger *zap.Logger,
) *ExpenseService {
	return &ExpenseService{
		expenses:   expenses,
		approvals:  approvals,
		rules:      rules,
		users:      users,
		companies:  companies,
		categories: categories,
		gateway:    gateway,
		planner:    planner,
		tx:         tx,
		logger:     logger,
	}
}

// Submit validates the input, converts the amount into the company
// currency, computes the workflow plan and persists the expense together
// with its pending approval records. Nothing is written until the rate and
// the plan are both resolved, so a gateway failure leaves no trace.
func (s *ExpenseService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	employee, err := s.users.GetByID(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if employee == nil || !employee.IsActive {
		return nil, fmt.Errorf("%w: employee %d", entity.ErrNotFound, in.EmployeeID)
	}

	original, err := entity.NewMoney(in.Amount, in.Currency)
	if err != nil {
		return nil, err
	}
	if !original.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", entity.ErrInvalidAmount)
	}
	if in.Description == "" {
		return nil, entity.ErrInvalidDescription
	}
	if in.ExpenseDate.After(time.Now()) {
		return nil, fmt.Errorf("%w: expense date is in the future", entity.ErrInvalidDate)
	}

	category, err := s.categories.GetActive(ctx, in.CategoryID, employee.CompanyID)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, fmt.Errorf("%w: category %d", entity.ErrInvalidCategory, in.CategoryID)
	}

	company, err := s.companies.GetByID(ctx, employee.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("%w: company %d", entity.ErrNotFound, employee.CompanyID)
	}

	companyAmount, rate, err := s.convert(ctx, original, company.Currency)
	if err != nil {
		return nil, err
	}

	expense := &entity.Expense{
		EmployeeID:    employee.ID,
		CompanyID:     employee.CompanyID,
		CategoryID:    category.ID,
		Original:      original,
		CompanyAmount: companyAmount,
		ExchangeRate:  rate,
		Description:   in.Description,
		ExpenseDate:   in.ExpenseDate,
		Status:        entity.ExpensePending,
	}

	ruleSet, err := s.rules.ListActiveByCompany(ctx, employee.CompanyID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.Plan(ctx, expense, employee, ruleSet)
	if err != nil {
		return nil, err
	}

	expense.RuleID = plan.RuleID
	expense.RuleType = plan.RuleType
	expense.RequiredPercentage = plan.RequiredPercentage
	expense.SpecificApproverID = plan.SpecificApproverID
	if plan.AutoApprove {
		expense.Status = entity.ExpenseApproved
	}

	var records []*entity.ApprovalRecord
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.expenses.Create(txCtx, expense); err != nil {
			return err
		}
		if plan.AutoApprove {
			return nil
		}
		records = make([]*entity.ApprovalRecord, 0, len(plan.Steps))
		for i, step := range plan.Steps {
			records = append(records, &entity.ApprovalRecord{
				ExpenseID:     expense.ID,
				ApproverID:    step.ApproverID,
				Status:        entity.ApprovalPending,
				SequenceOrder: i + 1,
				IsRequired:    step.Required,
				InPool:        step.InPool,
			})
		}
		return s.approvals.CreateBatch(txCtx, records)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("expense submitted",
		zap.Int64("expense_id", expense.ID),
		zap.Int64("employee_id", employee.ID),
		zap.String("company_amount", expense.CompanyAmount.String()),
		zap.String("status", expense.Status),
		zap.Int("approvers", len(records)))

	return &SubmitResult{Expense: expense, Approvals: records}, nil
}

// convert resolves the company-currency amount and the rate used. Identity
// conversions skip the gateway entirely.
func (s *ExpenseService) convert(ctx context.Context, m entity.Money, companyCurrency string) (entity.Money, decimal.Decimal, error) {
	if m.Currency == companyCurrency {
		converted, rate := entity.ConvertWithRate(m, companyCurrency, decimal.New(1, 0))
		return converted, rate, nil
	}
	rate, err := s.gateway.Rate(ctx, m.Currency, companyCurrency)
	if err != nil {
		return entity.Money{}, decimal.Decimal{}, fmt.Errorf("%w: %s to %s: %v",
			entity.ErrCurrencyUnavailable, m.Currency, companyCurrency, err)
	}
	converted, used := entity.ConvertWithRate(m, companyCurrency, rate)
	return converted, used, nil
}

// Get returns an expense with its approval records.
func (s *ExpenseService) Get(ctx context.Context, id int64) (*entity.Expense, []*entity.ApprovalRecord, error) {
	expense, err := s.expenses.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if expense == nil {
		return nil, nil, fmt.Errorf("%w: expense %d", entity.ErrNotFound, id)
	}
	records, err := s.approvals.GetByExpenseID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return expense, records, nil
}

// ListForUser returns expenses visible to the given user: their own for
// employees, the whole company's for managers and admins.
func (s *ExpenseService) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*entity.Expense, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", entity.ErrNotFound, userID)
	}
	if user.CanApprove() {
		return s.expenses.ListByCompany(ctx, user.CompanyID, limit, offset)
	}
	return s.expenses.ListByEmployee(ctx, userID, limit, offset)
}

// PendingApprovals returns the approval records waiting on the given approver.
func (s *ExpenseService) PendingApprovals(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error) {
	return s.approvals.ListPendingForApprover(ctx, approverID)
}

// ApprovalHistory returns the most recent decisions made by the approver.
func (s *ExpenseService) ApprovalHistory(ctx context.Context, approverID int64, limit int) ([]*entity.ApprovalRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.approvals.ListDecidedByApprover(ctx, approverID, limit)
}
