package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// memStore is a minimal in-memory stand-in for the expense and approval
// repositories plus the transaction manager. Mutations are applied
// directly; per-expense serialization comes from the engine's locks.
type memStore struct {
	mu        sync.Mutex
	expenses  map[int64]*entity.Expense
	approvals map[int64]*entity.ApprovalRecord
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		expenses:  make(map[int64]*entity.Expense),
		approvals: make(map[int64]*entity.ApprovalRecord),
		nextID:    1,
	}
}

func (s *memStore) addExpense(e *entity.Expense) *entity.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.expenses[e.ID] = e
	return e
}

func (s *memStore) addApproval(a *entity.ApprovalRecord) *entity.ApprovalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextID
	s.nextID++
	if a.Status == "" {
		a.Status = entity.ApprovalPending
	}
	s.approvals[a.ID] = a
	return a
}

func (s *memStore) Create(ctx context.Context, e *entity.Expense) error {
	s.addExpense(e)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[id].Status = status
	return nil
}

func (s *memStore) ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*entity.Expense, error) {
	return nil, nil
}

func (s *memStore) ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]*entity.Expense, error) {
	return nil, nil
}

func (s *memStore) ListByCompanyAndStatus(ctx context.Context, companyID int64, status string) ([]*entity.Expense, error) {
	return nil, nil
}

func (s *memStore) CreateBatch(ctx context.Context, records []*entity.ApprovalRecord) error {
	for _, r := range records {
		s.addApproval(r)
	}
	return nil
}

func (s *memStore) GetByExpenseAndApprover(ctx context.Context, expenseID, approverID int64) (*entity.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.approvals {
		if r.ExpenseID == expenseID && r.ApproverID == approverID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetByExpenseID(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ApprovalRecord
	for _, r := range s.approvals {
		if r.ExpenseID == expenseID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) Decide(ctx context.Context, id int64, status, comments string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.approvals[id]
	r.Status = status
	r.Comments = comments
	return nil
}

func (s *memStore) ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error) {
	return nil, nil
}

func (s *memStore) ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.ApprovalRecord, error) {
	return nil, nil
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestEngine(s *memStore) *Engine {
	return NewEngine(s, s, s, zap.NewNop())
}

func pendingExpense(s *memStore, ruleType string, pct int, specific *int64) *entity.Expense {
	return s.addExpense(&entity.Expense{
		Status:             entity.ExpensePending,
		RuleType:           ruleType,
		RequiredPercentage: pct,
		SpecificApproverID: specific,
	})
}

func TestEngine_Decide_SingleManagerApproves(t *testing.T) {
	s := newMemStore()
	exp := pendingExpense(s, "", 0, nil)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, SequenceOrder: 1, IsRequired: true})

	out, err := newTestEngine(s).Decide(context.Background(), exp.ID, 10, entity.DecisionApprove, "ok")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.RecordStatus != entity.ApprovalApproved {
		t.Errorf("record status = %v, want APPROVED", out.RecordStatus)
	}
	if out.ExpenseStatus != entity.ExpenseApproved {
		t.Errorf("expense status = %v, want APPROVED", out.ExpenseStatus)
	}
}

func TestEngine_Decide_RejectVetoes(t *testing.T) {
	s := newMemStore()
	exp := pendingExpense(s, "", 0, nil)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, SequenceOrder: 1, IsRequired: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 11, SequenceOrder: 2, IsRequired: true})

	out, err := newTestEngine(s).Decide(context.Background(), exp.ID, 11, entity.DecisionReject, "missing receipt")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseRejected {
		t.Errorf("expense status = %v, want REJECTED despite pending slot", out.ExpenseStatus)
	}
}

func TestEngine_Decide_RejectRequiresComments(t *testing.T) {
	s := newMemStore()
	exp := pendingExpense(s, "", 0, nil)
	rec := s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, IsRequired: true})

	_, err := newTestEngine(s).Decide(context.Background(), exp.ID, 10, entity.DecisionReject, "")
	if !errors.Is(err, entity.ErrCommentsRequired) {
		t.Fatalf("Decide() error = %v, want ErrCommentsRequired", err)
	}

	// Validation is all-or-nothing: nothing was mutated.
	stored, _ := s.GetByExpenseAndApprover(context.Background(), exp.ID, 10)
	if stored.Status != entity.ApprovalPending {
		t.Errorf("record %d mutated to %v on failed validation", rec.ID, stored.Status)
	}
}

func TestEngine_Decide_UnknownDecision(t *testing.T) {
	s := newMemStore()
	_, err := newTestEngine(s).Decide(context.Background(), 1, 1, "MAYBE", "")
	if !errors.Is(err, entity.ErrInvalidDecision) {
		t.Errorf("Decide() error = %v, want ErrInvalidDecision", err)
	}
}

func TestEngine_Decide_NotAnApprover(t *testing.T) {
	s := newMemStore()
	exp := pendingExpense(s, "", 0, nil)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, IsRequired: true})

	_, err := newTestEngine(s).Decide(context.Background(), exp.ID, 99, entity.DecisionApprove, "")
	if !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("Decide() error = %v, want ErrNotFound", err)
	}
}

func TestEngine_Decide_SecondDecisionConflicts(t *testing.T) {
	s := newMemStore()
	exp := pendingExpense(s, "", 0, nil)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, IsRequired: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 11, IsRequired: true})

	eng := newTestEngine(s)
	if _, err := eng.Decide(context.Background(), exp.ID, 10, entity.DecisionApprove, ""); err != nil {
		t.Fatalf("first Decide() error = %v", err)
	}

	_, err := eng.Decide(context.Background(), exp.ID, 10, entity.DecisionApprove, "")
	if !errors.Is(err, entity.ErrAlreadyDecided) {
		t.Errorf("second Decide() error = %v, want ErrAlreadyDecided", err)
	}
}

func TestEngine_Decide_TerminalExpenseRefusesDecisions(t *testing.T) {
	s := newMemStore()
	exp := s.addExpense(&entity.Expense{Status: entity.ExpenseRejected})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, IsRequired: true})

	_, err := newTestEngine(s).Decide(context.Background(), exp.ID, 10, entity.DecisionApprove, "")
	if !errors.Is(err, entity.ErrExpenseFinalized) {
		t.Errorf("Decide() error = %v, want ErrExpenseFinalized", err)
	}
}

func TestEngine_Decide_UnderReviewAfterFirstDecision(t *testing.T) {
	s := newMemStore()
	exp := pendingExpense(s, "", 0, nil)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, IsRequired: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 11, IsRequired: true})

	out, err := newTestEngine(s).Decide(context.Background(), exp.ID, 10, entity.DecisionApprove, "")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseUnderReview {
		t.Errorf("expense status = %v, want UNDER_REVIEW", out.ExpenseStatus)
	}
}

func TestEngine_Decide_PercentageThreshold(t *testing.T) {
	// 60% of a 5-person pool: satisfied exactly at the third approval.
	s := newMemStore()
	exp := pendingExpense(s, entity.RulePercentage, 60, nil)
	for id := int64(10); id < 15; id++ {
		s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: id, InPool: true})
	}

	eng := newTestEngine(s)
	ctx := context.Background()

	out, err := eng.Decide(ctx, exp.ID, 10, entity.DecisionApprove, "")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseUnderReview {
		t.Fatalf("after 1/5 status = %v, want UNDER_REVIEW", out.ExpenseStatus)
	}

	if out, err = eng.Decide(ctx, exp.ID, 11, entity.DecisionApprove, ""); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseUnderReview {
		t.Fatalf("after 2/5 status = %v, want UNDER_REVIEW", out.ExpenseStatus)
	}

	if out, err = eng.Decide(ctx, exp.ID, 12, entity.DecisionApprove, ""); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseApproved {
		t.Errorf("after 3/5 status = %v, want APPROVED", out.ExpenseStatus)
	}
}

func TestEngine_Decide_HybridSpecificApproverShortCircuits(t *testing.T) {
	s := newMemStore()
	cfo := int64(42)
	exp := pendingExpense(s, entity.RuleHybrid, 90, &cfo)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: cfo, InPool: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, InPool: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 11, InPool: true})

	out, err := newTestEngine(s).Decide(context.Background(), exp.ID, cfo, entity.DecisionApprove, "")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseApproved {
		t.Errorf("specific approver approval gave status %v, want APPROVED", out.ExpenseStatus)
	}
}

func TestEngine_Decide_RequiredSlotGatesPool(t *testing.T) {
	// Manager slot plus a satisfied pool: the manager must still approve.
	s := newMemStore()
	exp := pendingExpense(s, entity.RulePercentage, 50, nil)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 5, IsRequired: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, InPool: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 11, InPool: true})

	eng := newTestEngine(s)
	ctx := context.Background()

	if _, err := eng.Decide(ctx, exp.ID, 10, entity.DecisionApprove, ""); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	out, err := eng.Decide(ctx, exp.ID, 11, entity.DecisionApprove, "")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseUnderReview {
		t.Fatalf("pool satisfied but manager pending, status = %v, want UNDER_REVIEW", out.ExpenseStatus)
	}

	if out, err = eng.Decide(ctx, exp.ID, 5, entity.DecisionApprove, ""); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.ExpenseStatus != entity.ExpenseApproved {
		t.Errorf("after manager approval status = %v, want APPROVED", out.ExpenseStatus)
	}
}

func TestEngine_Decide_ConcurrentLastTwoApprovals(t *testing.T) {
	// Two simultaneous approvals on the last two slots must both succeed
	// with the expense landing on APPROVED exactly once.
	s := newMemStore()
	exp := pendingExpense(s, "", 0, nil)
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 10, IsRequired: true})
	s.addApproval(&entity.ApprovalRecord{ExpenseID: exp.ID, ApproverID: 11, IsRequired: true})

	eng := newTestEngine(s)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, approver := range []int64{10, 11} {
		wg.Add(1)
		go func(i int, approver int64) {
			defer wg.Done()
			_, errs[i] = eng.Decide(context.Background(), exp.ID, approver, entity.DecisionApprove, "")
		}(i, approver)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Decide() #%d error = %v", i, err)
		}
	}

	final, _ := s.GetByID(context.Background(), exp.ID)
	if final.Status != entity.ExpenseApproved {
		t.Errorf("final status = %v, want APPROVED", final.Status)
	}
}
