package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a submitted expense plus a snapshot of the approval-rule
// parameters that governed its workflow plan. The snapshot (RuleID,
// RuleType, RequiredPercentage, SpecificApproverID) is taken at plan time
// so that later rule edits never alter an in-flight workflow.
type Expense struct {
	ID         int64 `json:"id"`
	EmployeeID int64 `json:"employee_id"`
	CompanyID  int64 `json:"company_id"`
	CategoryID int64 `json:"category_id"`

	// Original amount as submitted, company amount after conversion.
	Original      Money           `json:"original"`
	CompanyAmount Money           `json:"company_amount"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`

	Description string    `json:"description"`
	ExpenseDate time.Time `json:"expense_date"`

	Status string `json:"status"`

	RuleID             *int64 `json:"rule_id,omitempty"`
	RuleType           string `json:"rule_type,omitempty"`
	RequiredPercentage int    `json:"required_percentage,omitempty"`
	SpecificApproverID *int64 `json:"specific_approver_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the expense has reached a final disposition.
// Terminal expenses accept no further decisions.
func (e *Expense) IsTerminal() bool {
	return e.Status == ExpenseApproved || e.Status == ExpenseRejected
}
