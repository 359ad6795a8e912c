package entity

import "time"

// ApprovalRecord is one approver's decision slot on an expense, created in
// PENDING state when the workflow plan is materialized. Each record makes
// exactly one transition, to APPROVED or REJECTED.
//
// IsRequired marks a slot that must be individually approved (manager
// step, specific approver, explicit sequence member). InPool marks a slot
// that counts toward a percentage/hybrid threshold. A record can be both
// when the same person holds both roles in the plan.
type ApprovalRecord struct {
	ID         int64 `json:"id"`
	ExpenseID  int64 `json:"expense_id"`
	ApproverID int64 `json:"approver_id"`

	Status        string `json:"status"`
	SequenceOrder int    `json:"sequence_order"`
	IsRequired    bool   `json:"is_required"`
	InPool        bool   `json:"in_pool"`

	Comments  string     `json:"comments,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsDecided reports whether the record has already made its transition.
func (a *ApprovalRecord) IsDecided() bool {
	return a.Status != ApprovalPending
}
