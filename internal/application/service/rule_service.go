package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// RuleService manages a company's approval rules. Rules are only ever
// created and deactivated; in-flight expenses carry a snapshot of their
// governing rule, so edits can never rewrite history.
type RuleService struct {
	rules  port.RuleRepository
	users  port.UserRepository
	logger *zap.Logger
}

// NewRuleService creates a RuleService.
func NewRuleService(rules port.RuleRepository, users port.UserRepository, logger *zap.Logger) *RuleService {
	return &RuleService{rules: rules, users: users, logger: logger}
}

// Create validates and stores a new approval rule for a company. The
// specific approver, when set, must be an active manager or admin of the
// same company.
func (s *RuleService) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", entity.ErrInvalidRule)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: rule %q", err, rule.Name)
	}

	if rule.SpecificApproverID != nil {
		approver, err := s.users.GetByID(ctx, *rule.SpecificApproverID)
		if err != nil {
			return err
		}
		if approver == nil || !approver.IsActive ||
			approver.CompanyID != rule.CompanyID || !approver.CanApprove() {
			return fmt.Errorf("%w: specific approver %d is not an active manager or admin of company %d",
				entity.ErrInvalidRule, *rule.SpecificApproverID, rule.CompanyID)
		}
	}

	for _, approverID := range rule.Sequence {
		u, err := s.users.GetByID(ctx, approverID)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive || u.CompanyID != rule.CompanyID {
			return fmt.Errorf("%w: sequence approver %d does not belong to company %d",
				entity.ErrInvalidRule, approverID, rule.CompanyID)
		}
	}

	rule.IsActive = true
	if err := s.rules.Create(ctx, rule); err != nil {
		return err
	}

	s.logger.Info("approval rule created",
		zap.Int64("rule_id", rule.ID),
		zap.Int64("company_id", rule.CompanyID),
		zap.String("type", rule.Type))

	return nil
}

// ListActive returns the company's active rules in creation order, the
// same order the planner evaluates them in.
func (s *RuleService) ListActive(ctx context.Context, companyID int64) ([]*entity.ApprovalRule, error) {
	return s.rules.ListActiveByCompany(ctx, companyID)
}
