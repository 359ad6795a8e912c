package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalRule is one configured rule of a company's rule set. Which
// fields are meaningful depends on Type:
//
//	PERCENTAGE        RequiredPercentage over the approver pool
//	SPECIFIC_APPROVER SpecificApproverID must approve
//	HYBRID            either the specific approver, or the percentage
//
// MinAmount/MaxAmount bound the company-currency amount the rule applies
// to; a nil MaxAmount means unbounded. Sequence, when non-empty, replaces
// the whole plan with the listed approvers in order.
type ApprovalRule struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`

	MinAmount *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`

	RequiredPercentage int    `json:"required_percentage,omitempty"`
	SpecificApproverID *int64 `json:"specific_approver_id,omitempty"`

	RequiresManagerApproval bool    `json:"requires_manager_approval"`
	Sequence                []int64 `json:"sequence,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether the rule applies to an expense of the given
// company-currency amount.
func (r *ApprovalRule) Matches(amount decimal.Decimal) bool {
	if r.MinAmount != nil && amount.LessThan(*r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && amount.GreaterThan(*r.MaxAmount) {
		return false
	}
	return true
}

// Validate checks the type-specific field requirements.
func (r *ApprovalRule) Validate() error {
	switch r.Type {
	case RulePercentage:
		if r.RequiredPercentage < 1 || r.RequiredPercentage > 100 {
			return ErrInvalidRule
		}
	case RuleSpecificApprover:
		if r.SpecificApproverID == nil {
			return ErrInvalidRule
		}
	case RuleHybrid:
		if r.RequiredPercentage < 1 || r.RequiredPercentage > 100 || r.SpecificApproverID == nil {
			return ErrInvalidRule
		}
	default:
		return ErrInvalidRule
	}
	if r.MinAmount != nil && r.MaxAmount != nil && r.MaxAmount.LessThan(*r.MinAmount) {
		return ErrInvalidRule
	}
	return nil
}
