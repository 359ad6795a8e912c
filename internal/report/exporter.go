// Package report builds Excel workbooks summarizing a company's expenses.
package report

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// listLimit caps how many expenses one workbook includes.
const listLimit = 10000

// Exporter assembles an expense report workbook with a detail sheet and a
// per-status / per-category summary sheet.
type Exporter struct {
	expenses  port.ExpenseRepository
	users     port.UserRepository
	companies port.CompanyRepository
	logger    *zap.Logger
}

// NewExporter creates a new report exporter
func NewExporter(
	expenses port.ExpenseRepository,
	users port.UserRepository,
	companies port.CompanyRepository,
	logger *zap.Logger,
) *Exporter {
	return &Exporter{
		expenses:  expenses,
		users:     users,
		companies: companies,
		logger:    logger,
	}
}

// CompanyWorkbook builds the report for one company. The caller owns the
// returned file and must Close it.
func (e *Exporter) CompanyWorkbook(ctx context.Context, companyID int64) (*excelize.File, error) {
	company, err := e.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("company %d: %w", companyID, entity.ErrNotFound)
	}

	expenses, err := e.expenses.ListByCompany(ctx, companyID, listLimit, 0)
	if err != nil {
		return nil, err
	}

	names, err := e.employeeNames(ctx, companyID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := e.fillDetailSheet(f, company, expenses, names); err != nil {
		f.Close()
		return nil, err
	}
	if err := e.fillSummarySheet(f, company, expenses); err != nil {
		f.Close()
		return nil, err
	}

	e.logger.Info("expense report built",
		zap.Int64("company_id", companyID),
		zap.Int("expenses", len(expenses)))
	return f, nil
}

func (e *Exporter) employeeNames(ctx context.Context, companyID int64) (map[int64]string, error) {
	users, err := e.users.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName()
	}
	return names, nil
}

func (e *Exporter) fillDetailSheet(f *excelize.File, company *entity.Company, expenses []*entity.Expense, names map[int64]string) error {
	const sheet = "Expenses"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []interface{}{
		"ID", "Employee", "Description", "Date",
		"Original Amount", "Original Currency",
		fmt.Sprintf("Amount (%s)", company.Currency), "Exchange Rate", "Status",
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, exp := range expenses {
		name := names[exp.EmployeeID]
		if name == "" {
			name = fmt.Sprintf("user %d", exp.EmployeeID)
		}
		row := []interface{}{
			exp.ID,
			name,
			exp.Description,
			exp.ExpenseDate.Format("2006-01-02"),
			exp.Original.Amount.String(),
			exp.Original.Currency,
			exp.CompanyAmount.Amount.String(),
			exp.ExchangeRate.String(),
			exp.Status,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return nil
}

func (e *Exporter) fillSummarySheet(f *excelize.File, company *entity.Company, expenses []*entity.Expense) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	totals := map[string]decimal.Decimal{}
	counts := map[string]int{}
	for _, exp := range expenses {
		totals[exp.Status] = totals[exp.Status].Add(exp.CompanyAmount.Amount)
		counts[exp.Status]++
	}

	header := []interface{}{"Status", "Count", fmt.Sprintf("Total (%s)", company.Currency)}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}

	statuses := []string{
		entity.ExpensePending,
		entity.ExpenseUnderReview,
		entity.ExpenseApproved,
		entity.ExpenseRejected,
	}
	for i, status := range statuses {
		row := []interface{}{status, counts[status], totals[status].StringFixed(2)}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return nil
}
