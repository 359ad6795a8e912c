package entity

// User roles.
const (
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleEmployee = "EMPLOYEE"
)

// Expense statuses.
const (
	ExpensePending     = "PENDING"
	ExpenseUnderReview = "UNDER_REVIEW"
	ExpenseApproved    = "APPROVED"
	ExpenseRejected    = "REJECTED"
)

// Approval record statuses.
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// Approval rule types.
const (
	RulePercentage       = "PERCENTAGE"
	RuleSpecificApprover = "SPECIFIC_APPROVER"
	RuleHybrid           = "HYBRID"
)

// Decision kinds accepted by the workflow engine.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)
