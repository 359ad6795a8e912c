package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Outcome reports what a decision did to the approval record and to the
// expense as a whole.
type Outcome struct {
	RecordStatus  string
	ExpenseStatus string
}

// Engine applies individual approve/reject decisions to an expense's
// approval records and advances the expense's overall status.
//
// All reads and writes for one decision run inside a single transaction,
// additionally serialized per expense ID so concurrent decisions on the
// same expense cannot interleave between evaluate and commit. Decisions
// on different expenses proceed independently.
type Engine struct {
	expenses  port.ExpenseRepository
	approvals port.ApprovalRepository
	tx        port.TransactionManager
	locks     expenseLocks
	logger    *zap.Logger
}

// NewEngine creates a workflow engine.
func NewEngine(
	expenses port.ExpenseRepository,
	approvals port.ApprovalRepository,
	tx port.TransactionManager,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		expenses:  expenses,
		approvals: approvals,
		tx:        tx,
		logger:    logger,
	}
}

// Decide records one approver's decision on an expense. The approver must
// hold a PENDING approval record for the expense; a repeat call fails with
// ErrAlreadyDecided rather than being silently ignored. A rejection always
// requires comments and immediately finalizes the expense as REJECTED.
func (e *Engine) Decide(ctx context.Context, expenseID, approverID int64, decision, comments string) (*Outcome, error) {
	switch decision {
	case entity.DecisionApprove:
	case entity.DecisionReject:
		if comments == "" {
			return nil, entity.ErrCommentsRequired
		}
	default:
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidDecision, decision)
	}

	unlock := e.locks.lock(expenseID)
	defer unlock()

	var outcome *Outcome
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		expense, err := e.expenses.GetByID(txCtx, expenseID)
		if err != nil {
			return err
		}
		if expense == nil {
			return fmt.Errorf("%w: expense %d", entity.ErrNotFound, expenseID)
		}
		if expense.IsTerminal() {
			return fmt.Errorf("%w: expense %d is %s", entity.ErrExpenseFinalized, expenseID, expense.Status)
		}

		record, err := e.approvals.GetByExpenseAndApprover(txCtx, expenseID, approverID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: no approval for approver %d on expense %d", entity.ErrNotFound, approverID, expenseID)
		}
		if record.IsDecided() {
			return fmt.Errorf("%w: approval %d is %s", entity.ErrAlreadyDecided, record.ID, record.Status)
		}

		machine, err := BuildExpenseMachine(expense.Status)
		if err != nil {
			return err
		}

		if decision == entity.DecisionReject {
			if err := e.approvals.Decide(txCtx, record.ID, entity.ApprovalRejected, comments); err != nil {
				return err
			}
			// One veto finalizes the expense regardless of other slots.
			if err := machine.Fire(domainwf.TriggerReject); err != nil {
				return err
			}
			if err := e.expenses.UpdateStatus(txCtx, expenseID, string(machine.State())); err != nil {
				return err
			}
			outcome = &Outcome{RecordStatus: entity.ApprovalRejected, ExpenseStatus: string(machine.State())}
			return nil
		}

		if err := e.approvals.Decide(txCtx, record.ID, entity.ApprovalApproved, comments); err != nil {
			return err
		}

		records, err := e.approvals.GetByExpenseID(txCtx, expenseID)
		if err != nil {
			return err
		}

		if planSatisfied(expense, records) {
			if err := machine.Fire(domainwf.TriggerApprove); err != nil {
				return err
			}
			if err := e.expenses.UpdateStatus(txCtx, expenseID, string(machine.State())); err != nil {
				return err
			}
		} else if machine.State() == domainwf.StatePending {
			// First decision recorded; purely informational transition.
			if err := machine.Fire(domainwf.TriggerReview); err != nil {
				return err
			}
			if err := e.expenses.UpdateStatus(txCtx, expenseID, string(machine.State())); err != nil {
				return err
			}
		}

		outcome = &Outcome{RecordStatus: entity.ApprovalApproved, ExpenseStatus: string(machine.State())}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("decision recorded",
		zap.Int64("expense_id", expenseID),
		zap.Int64("approver_id", approverID),
		zap.String("decision", decision),
		zap.String("expense_status", outcome.ExpenseStatus))

	return outcome, nil
}

// planSatisfied evaluates the completion condition over the expense's
// approval records:
//
//   - every Required slot is individually APPROVED, and
//   - if a percentage/hybrid pool exists, either the hybrid's specific
//     approver has approved, or approved pool members have reached the
//     snapshot threshold. Once the threshold is met the remaining pool
//     members are no longer waited on.
func planSatisfied(expense *entity.Expense, records []*entity.ApprovalRecord) bool {
	poolTotal, poolApproved := 0, 0
	hybridHit := false

	for _, r := range records {
		approved := r.Status == entity.ApprovalApproved
		if r.IsRequired && !approved {
			return false
		}
		if r.InPool {
			poolTotal++
			if approved {
				poolApproved++
				if expense.RuleType == entity.RuleHybrid &&
					expense.SpecificApproverID != nil &&
					r.ApproverID == *expense.SpecificApproverID {
					hybridHit = true
				}
			}
		}
	}

	if poolTotal == 0 {
		return true
	}
	if hybridHit {
		return true
	}
	// Integer form of approved/total >= percentage/100.
	return poolApproved*100 >= expense.RequiredPercentage*poolTotal
}

// expenseLocks serializes decisions per expense ID with striped mutexes.
// Stripes bound memory; collisions only cost unneeded serialization.
type expenseLocks struct {
	stripes [64]sync.Mutex
}

func (l *expenseLocks) lock(expenseID int64) func() {
	m := &l.stripes[uint64(expenseID)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
