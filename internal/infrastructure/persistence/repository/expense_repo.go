package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqlite.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

const expenseColumns = `
	id, employee_id, company_id, category_id,
	original_amount, original_currency, company_amount, company_currency,
	exchange_rate, description, expense_date, status,
	rule_id, rule_type, required_percentage, specific_approver_id,
	created_at, updated_at`

// Create inserts the expense and fills in its generated ID.
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	query := `
		INSERT INTO expenses (
			employee_id, company_id, category_id,
			original_amount, original_currency, company_amount, company_currency,
			exchange_rate, description, expense_date, status,
			rule_id, rule_type, required_percentage, specific_approver_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		expense.EmployeeID,
		expense.CompanyID,
		expense.CategoryID,
		expense.Original.Amount.String(),
		expense.Original.Currency,
		expense.CompanyAmount.Amount.String(),
		expense.CompanyAmount.Currency,
		expense.ExchangeRate.String(),
		expense.Description,
		expense.ExpenseDate,
		expense.Status,
		expense.RuleID,
		expense.RuleType,
		expense.RequiredPercentage,
		expense.SpecificApproverID,
	)
	if err != nil {
		r.logger.Error("failed to create expense", zap.Error(err))
		return fmt.Errorf("create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	expense.ID = id
	return nil
}

// GetByID retrieves an expense by ID. Returns nil when not found.
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	query := `SELECT` + expenseColumns + ` FROM expenses WHERE id = ?`

	row := r.db.Executor(ctx).QueryRowContext(ctx, query, id)
	expense, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get expense", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return expense, nil
}

// UpdateStatus moves the expense to a new lifecycle status.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE expenses SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, status, id)
	if err != nil {
		r.logger.Error("failed to update expense status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("update expense status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("expense %d: %w", id, entity.ErrNotFound)
	}
	return nil
}

// ListByEmployee returns an employee's expenses, newest first.
func (r *ExpenseRepository) ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*entity.Expense, error) {
	query := `SELECT` + expenseColumns + `
		FROM expenses WHERE employee_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, employeeID, limit, offset)
}

// ListByCompany returns a company's expenses, newest first.
func (r *ExpenseRepository) ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]*entity.Expense, error) {
	query := `SELECT` + expenseColumns + `
		FROM expenses WHERE company_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, companyID, limit, offset)
}

// ListByCompanyAndStatus returns all of a company's expenses in one status.
func (r *ExpenseRepository) ListByCompanyAndStatus(ctx context.Context, companyID int64, status string) ([]*entity.Expense, error) {
	query := `SELECT` + expenseColumns + `
		FROM expenses WHERE company_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC`

	return r.list(ctx, query, companyID, status)
}

func (r *ExpenseRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Expense, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var expense entity.Expense
	var originalAmount, companyAmount, exchangeRate string
	var ruleID, specificApproverID sql.NullInt64

	err := row.Scan(
		&expense.ID,
		&expense.EmployeeID,
		&expense.CompanyID,
		&expense.CategoryID,
		&originalAmount,
		&expense.Original.Currency,
		&companyAmount,
		&expense.CompanyAmount.Currency,
		&exchangeRate,
		&expense.Description,
		&expense.ExpenseDate,
		&expense.Status,
		&ruleID,
		&expense.RuleType,
		&expense.RequiredPercentage,
		&specificApproverID,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expense.Original.Amount, err = decimal.NewFromString(originalAmount); err != nil {
		return nil, fmt.Errorf("parse original amount: %w", err)
	}
	if expense.CompanyAmount.Amount, err = decimal.NewFromString(companyAmount); err != nil {
		return nil, fmt.Errorf("parse company amount: %w", err)
	}
	if expense.ExchangeRate, err = decimal.NewFromString(exchangeRate); err != nil {
		return nil, fmt.Errorf("parse exchange rate: %w", err)
	}
	if ruleID.Valid {
		expense.RuleID = &ruleID.Int64
	}
	if specificApproverID.Valid {
		expense.SpecificApproverID = &specificApproverID.Int64
	}
	return &expense, nil
}
