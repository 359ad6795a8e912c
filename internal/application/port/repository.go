package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseRepository defines persistence operations for Expense.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*entity.Expense, error)
	ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]*entity.Expense, error)
	ListByCompanyAndStatus(ctx context.Context, companyID int64, status string) ([]*entity.Expense, error)
}

// ApprovalRepository defines persistence operations for ApprovalRecord.
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, records []*entity.ApprovalRecord) error
	GetByExpenseAndApprover(ctx context.Context, expenseID, approverID int64) (*entity.ApprovalRecord, error)
	GetByExpenseID(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error)
	Decide(ctx context.Context, id int64, status, comments string) error
	ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error)
	ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.ApprovalRecord, error)
}

// RuleRepository defines persistence operations for ApprovalRule.
type RuleRepository interface {
	Create(ctx context.Context, rule *entity.ApprovalRule) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error)
	ListActiveByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalRule, error)
}

// UserRepository defines persistence operations for User.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	SetManager(ctx context.Context, userID int64, managerID *int64) error
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error)
}

// CompanyRepository defines read operations for Company.
type CompanyRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
}

// CategoryRepository defines read operations for Category.
type CategoryRepository interface {
	GetActive(ctx context.Context, id, companyID int64) (*entity.Category, error)
}

// TransactionManager runs fn inside a database transaction. The transaction
// travels in the context; repositories pick it up transparently.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
