package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Step is one approver slot in a workflow plan. Required slots must be
// individually approved; InPool slots count toward a percentage threshold.
// The same approver can hold both roles, in which case the flags merge.
type Step struct {
	ApproverID int64
	Required   bool
	InPool     bool
}

// Plan is the materialization blueprint computed once at submission time.
// When AutoApprove is set the expense is approved immediately and no
// approval records are created.
type Plan struct {
	Steps       []Step
	AutoApprove bool

	// Snapshot of the governing rule, copied onto the expense so later
	// rule edits cannot alter an in-flight workflow.
	RuleID             *int64
	RuleType           string
	RequiredPercentage int
	SpecificApproverID *int64
}

// Planner computes workflow plans from a company's rule set and the
// submitting employee's position in the org tree.
type Planner struct {
	directory port.Directory
	logger    *zap.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(directory port.Directory, logger *zap.Logger) *Planner {
	return &Planner{directory: directory, logger: logger}
}

// Plan computes the ordered approver slots for an expense. rules must be
// the company's active rules in creation order; the first rule whose
// amount range matches the company-currency amount governs the plan.
func (p *Planner) Plan(ctx context.Context, expense *entity.Expense, employee *entity.User, rules []*entity.ApprovalRule) (*Plan, error) {
	amount := expense.CompanyAmount.Amount

	var matched *entity.ApprovalRule
	for _, r := range rules {
		if r.Matches(amount) {
			matched = r
			break
		}
	}

	// An explicit sequence replaces everything else, manager included.
	// The submitter is skipped like everywhere else; nobody approves
	// their own expense.
	if matched != nil && len(matched.Sequence) > 0 {
		plan := &Plan{}
		p.snapshotRule(plan, matched)
		for _, approverID := range matched.Sequence {
			if approverID == employee.ID {
				continue
			}
			plan.Steps = append(plan.Steps, Step{ApproverID: approverID, Required: true})
		}
		if len(plan.Steps) == 0 {
			return nil, fmt.Errorf("%w: rule %d sequence leaves no approver for employee %d",
				entity.ErrInvalidWorkflow, matched.ID, employee.ID)
		}
		plan.Steps = dedupeSteps(plan.Steps)
		return plan, nil
	}

	var steps []Step

	// Baseline: the employee's manager approves first unless the matched
	// rule explicitly waives it.
	managerRequired := matched == nil || matched.RequiresManagerApproval
	if managerRequired {
		managerID, ok, err := p.directory.ManagerOf(ctx, employee.ID)
		if err != nil {
			return nil, fmt.Errorf("look up manager: %w", err)
		}
		switch {
		case ok:
			steps = append(steps, Step{ApproverID: managerID, Required: true})
		case matched != nil && matched.RequiresManagerApproval:
			// A rule demands manager approval but the employee has none.
			// Fall back to the first active admin instead of deadlocking.
			adminID, err := p.firstActiveAdmin(ctx, employee.CompanyID)
			if err != nil {
				return nil, err
			}
			steps = append(steps, Step{ApproverID: adminID, Required: true})
		}
	}

	plan := &Plan{}
	if matched != nil {
		p.snapshotRule(plan, matched)
		extra, err := p.ruleSteps(ctx, matched, employee)
		if err != nil {
			return nil, err
		}
		steps = append(steps, extra...)
	}

	if len(steps) == 0 {
		if len(rules) == 0 {
			// No rules, no manager: nothing to wait on.
			return &Plan{AutoApprove: true}, nil
		}
		if matched != nil {
			return nil, fmt.Errorf("%w: rule %d leaves no approver for employee %d",
				entity.ErrInvalidWorkflow, matched.ID, employee.ID)
		}
		return nil, fmt.Errorf("%w: no rule matched amount %s and employee %d has no manager",
			entity.ErrInvalidWorkflow, expense.CompanyAmount, employee.ID)
	}

	plan.Steps = dedupeSteps(steps)

	p.logger.Debug("workflow plan computed",
		zap.Int64("employee_id", employee.ID),
		zap.Int("steps", len(plan.Steps)),
		zap.String("rule_type", plan.RuleType))

	return plan, nil
}

// ruleSteps returns the extra approver slots contributed by the matched rule.
func (p *Planner) ruleSteps(ctx context.Context, rule *entity.ApprovalRule, employee *entity.User) ([]Step, error) {
	switch rule.Type {
	case entity.RuleSpecificApprover:
		if *rule.SpecificApproverID == employee.ID {
			// The submitter cannot be their own specific approver; the
			// manager baseline (or the empty-plan check) still applies.
			return nil, nil
		}
		return []Step{{ApproverID: *rule.SpecificApproverID, Required: true}}, nil

	case entity.RulePercentage:
		pool, err := p.approverPool(ctx, employee)
		if err != nil {
			return nil, err
		}
		steps := make([]Step, 0, len(pool))
		for _, id := range pool {
			steps = append(steps, Step{ApproverID: id, InPool: true})
		}
		return steps, nil

	case entity.RuleHybrid:
		// The specific approver joins the pool; the engine short-circuits
		// on their approval regardless of the threshold. When the submitter
		// is the specific approver the rule degenerates to the percentage
		// path: they never hold a slot, so no short-circuit is reachable.
		var steps []Step
		if *rule.SpecificApproverID != employee.ID {
			steps = append(steps, Step{ApproverID: *rule.SpecificApproverID, InPool: true})
		}
		pool, err := p.approverPool(ctx, employee)
		if err != nil {
			return nil, err
		}
		for _, id := range pool {
			steps = append(steps, Step{ApproverID: id, InPool: true})
		}
		return steps, nil

	default:
		return nil, fmt.Errorf("%w: rule %d has unknown type %q", entity.ErrInvalidWorkflow, rule.ID, rule.Type)
	}
}

// approverPool returns the company's active managers and admins, minus the
// submitting employee; nobody approves their own expense.
func (p *Planner) approverPool(ctx context.Context, employee *entity.User) ([]int64, error) {
	ids, err := p.directory.ActiveManagersAndAdmins(ctx, employee.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("look up approver pool: %w", err)
	}
	pool := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != employee.ID {
			pool = append(pool, id)
		}
	}
	return pool, nil
}

func (p *Planner) firstActiveAdmin(ctx context.Context, companyID int64) (int64, error) {
	ids, err := p.directory.ActiveManagersAndAdmins(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("look up admins: %w", err)
	}
	for _, id := range ids {
		role, err := p.directory.RoleOf(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("look up role of %d: %w", id, err)
		}
		if role == entity.RoleAdmin {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: company %d has no active admin to fall back to", entity.ErrInvalidWorkflow, companyID)
}

func (p *Planner) snapshotRule(plan *Plan, rule *entity.ApprovalRule) {
	id := rule.ID
	plan.RuleID = &id
	plan.RuleType = rule.Type
	plan.RequiredPercentage = rule.RequiredPercentage
	plan.SpecificApproverID = rule.SpecificApproverID
}

// dedupeSteps collapses duplicate approver IDs preserving first-seen order,
// merging the Required/InPool flags of later occurrences.
func dedupeSteps(steps []Step) []Step {
	seen := make(map[int64]int, len(steps))
	out := steps[:0]
	for _, s := range steps {
		if i, ok := seen[s.ApproverID]; ok {
			out[i].Required = out[i].Required || s.Required
			out[i].InPool = out[i].InPool || s.InPool
			continue
		}
		seen[s.ApproverID] = len(out)
		out = append(out, s)
	}
	return out
}
