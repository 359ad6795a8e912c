package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// RuleRepository implements port.RuleRepository. The explicit approver
// sequence is stored as a JSON array in a TEXT column.
type RuleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlite.DB, logger *zap.Logger) port.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

const ruleColumns = `
	id, company_id, name, description, type,
	min_amount, max_amount, required_percentage, specific_approver_id,
	requires_manager_approval, sequence, is_active, created_at`

// Create inserts the rule and fills in its generated ID.
func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	sequence, err := json.Marshal(rule.Sequence)
	if err != nil {
		return fmt.Errorf("marshal sequence: %w", err)
	}

	query := `
		INSERT INTO approval_rules (
			company_id, name, description, type,
			min_amount, max_amount, required_percentage, specific_approver_id,
			requires_manager_approval, sequence, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		rule.CompanyID,
		rule.Name,
		rule.Description,
		rule.Type,
		decimalText(rule.MinAmount),
		decimalText(rule.MaxAmount),
		rule.RequiredPercentage,
		rule.SpecificApproverID,
		rule.RequiresManagerApproval,
		string(sequence),
		rule.IsActive,
	)
	if err != nil {
		r.logger.Error("failed to create rule", zap.Error(err))
		return fmt.Errorf("create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rule.ID = id
	return nil
}

// GetByID retrieves a rule by ID. Returns nil when not found.
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	query := `SELECT` + ruleColumns + ` FROM approval_rules WHERE id = ?`

	row := r.db.Executor(ctx).QueryRowContext(ctx, query, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get rule", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// ListActiveByCompany returns a company's active rules in creation order,
// which is the order the planner evaluates them in.
func (r *RuleRepository) ListActiveByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalRule, error) {
	query := `SELECT` + ruleColumns + `
		FROM approval_rules WHERE company_id = ? AND is_active = 1
		ORDER BY id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, companyID)
	if err != nil {
		r.logger.Error("failed to list rules", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (*entity.ApprovalRule, error) {
	var (
		rule                 entity.ApprovalRule
		minAmount, maxAmount sql.NullString
		specificApproverID   sql.NullInt64
		sequence             string
	)

	err := row.Scan(
		&rule.ID,
		&rule.CompanyID,
		&rule.Name,
		&rule.Description,
		&rule.Type,
		&minAmount,
		&maxAmount,
		&rule.RequiredPercentage,
		&specificApproverID,
		&rule.RequiresManagerApproval,
		&sequence,
		&rule.IsActive,
		&rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rule.MinAmount, err = parseDecimal(minAmount); err != nil {
		return nil, fmt.Errorf("parse min amount: %w", err)
	}
	if rule.MaxAmount, err = parseDecimal(maxAmount); err != nil {
		return nil, fmt.Errorf("parse max amount: %w", err)
	}
	if specificApproverID.Valid {
		rule.SpecificApproverID = &specificApproverID.Int64
	}
	if err := json.Unmarshal([]byte(sequence), &rule.Sequence); err != nil {
		return nil, fmt.Errorf("parse sequence: %w", err)
	}
	return &rule, nil
}

func decimalText(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
