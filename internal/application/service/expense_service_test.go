package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Mock ports with overridable funcs, defaults wired for the happy path.

type mockExpenseRepo struct {
	created *entity.Expense
}

func (m *mockExpenseRepo) Create(ctx context.Context, e *entity.Expense) error {
	e.ID = 1
	m.created = e
	return nil
}

func (m *mockExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	return m.created, nil
}

func (m *mockExpenseRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	return nil
}

func (m *mockExpenseRepo) ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*entity.Expense, error) {
	return nil, nil
}

func (m *mockExpenseRepo) ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]*entity.Expense, error) {
	return nil, nil
}

func (m *mockExpenseRepo) ListByCompanyAndStatus(ctx context.Context, companyID int64, status string) ([]*entity.Expense, error) {
	return nil, nil
}

type mockApprovalRepo struct {
	batch []*entity.ApprovalRecord
}

func (m *mockApprovalRepo) CreateBatch(ctx context.Context, records []*entity.ApprovalRecord) error {
	m.batch = records
	return nil
}

func (m *mockApprovalRepo) GetByExpenseAndApprover(ctx context.Context, expenseID, approverID int64) (*entity.ApprovalRecord, error) {
	return nil, nil
}

func (m *mockApprovalRepo) GetByExpenseID(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	return m.batch, nil
}

func (m *mockApprovalRepo) Decide(ctx context.Context, id int64, status, comments string) error {
	return nil
}

func (m *mockApprovalRepo) ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error) {
	return nil, nil
}

func (m *mockApprovalRepo) ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.ApprovalRecord, error) {
	return nil, nil
}

type mockRuleRepo struct {
	rules []*entity.ApprovalRule
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	rule.ID = int64(len(m.rules) + 1)
	m.rules = append(m.rules, rule)
	return nil
}

func (m *mockRuleRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	return nil, nil
}

func (m *mockRuleRepo) ListActiveByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalRule, error) {
	return m.rules, nil
}

type mockUserRepo struct {
	users map[int64]*entity.User
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) SetManager(ctx context.Context, userID int64, managerID *int64) error {
	m.users[userID].ManagerID = managerID
	return nil
}

func (m *mockUserRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	return nil, nil
}

type mockCompanyRepo struct {
	currency string
}

func (m *mockCompanyRepo) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	return &entity.Company{ID: id, Name: "Acme", Currency: m.currency}, nil
}

type mockCategoryRepo struct {
	missing bool
}

func (m *mockCategoryRepo) GetActive(ctx context.Context, id, companyID int64) (*entity.Category, error) {
	if m.missing {
		return nil, nil
	}
	return &entity.Category{ID: id, CompanyID: companyID, Name: "Travel", IsActive: true}, nil
}

type mockGateway struct {
	rate  string
	err   error
	calls int
}

func (m *mockGateway) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	m.calls++
	if m.err != nil {
		return decimal.Decimal{}, m.err
	}
	return decimal.RequireFromString(m.rate), nil
}

type mockDirectory struct {
	managers map[int64]int64
}

func (m *mockDirectory) ManagerOf(ctx context.Context, userID int64) (int64, bool, error) {
	id, ok := m.managers[userID]
	return id, ok, nil
}

func (m *mockDirectory) RoleOf(ctx context.Context, userID int64) (string, error) {
	return entity.RoleManager, nil
}

func (m *mockDirectory) ActiveManagersAndAdmins(ctx context.Context, companyID int64) ([]int64, error) {
	return nil, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc       *ExpenseService
	expenses  *mockExpenseRepo
	approvals *mockApprovalRepo
	rules     *mockRuleRepo
	gateway   *mockGateway
	users     *mockUserRepo
	directory *mockDirectory
}

func newFixture() *fixture {
	f := &fixture{
		expenses:  &mockExpenseRepo{},
		approvals: &mockApprovalRepo{},
		rules:     &mockRuleRepo{},
		gateway:   &mockGateway{rate: "0.92"},
		users: &mockUserRepo{users: map[int64]*entity.User{
			7:  {ID: 7, CompanyID: 1, Role: entity.RoleEmployee, IsActive: true},
			20: {ID: 20, CompanyID: 1, Role: entity.RoleManager, IsActive: true},
		}},
		directory: &mockDirectory{managers: map[int64]int64{7: 20}},
	}
	logger := zap.NewNop()
	f.svc = NewExpenseService(
		f.expenses, f.approvals, f.rules, f.users,
		&mockCompanyRepo{currency: "USD"}, &mockCategoryRepo{},
		f.gateway, workflow.NewPlanner(f.directory, logger),
		passthroughTx{}, logger,
	)
	return f
}

func validInput() SubmitInput {
	return SubmitInput{
		EmployeeID:  7,
		Amount:      "100.00",
		Currency:    "USD",
		CategoryID:  3,
		Description: "client dinner",
		ExpenseDate: time.Now().Add(-24 * time.Hour),
	}
}

func TestExpenseService_Submit_ManagerWorkflow(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, entity.ExpensePending, res.Expense.Status)
	require.Len(t, res.Approvals, 1)
	assert.Equal(t, int64(20), res.Approvals[0].ApproverID)
	assert.Equal(t, 1, res.Approvals[0].SequenceOrder)
	assert.Equal(t, entity.ApprovalPending, res.Approvals[0].Status)

	// Same-currency submission must not touch the gateway.
	assert.Zero(t, f.gateway.calls)
	assert.Equal(t, "1", res.Expense.ExchangeRate.String())
}

func TestExpenseService_Submit_AutoApprove(t *testing.T) {
	f := newFixture()
	delete(f.directory.managers, 7)

	res, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, entity.ExpenseApproved, res.Expense.Status)
	assert.Empty(t, res.Approvals)
}

func TestExpenseService_Submit_ConvertsCurrency(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.Currency = "EUR"
	f.gateway.rate = "1.0869565"

	res, err := f.svc.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, "USD", res.Expense.CompanyAmount.Currency)
	// 100.00 * 1.086957 (rate rounded to 6 places) = 108.70 half-up.
	assert.Equal(t, "108.70 USD", res.Expense.CompanyAmount.String())
	assert.Equal(t, "1.086957", res.Expense.ExchangeRate.StringFixed(6))
	assert.Equal(t, "100.00 EUR", res.Expense.Original.String())
}

func TestExpenseService_Submit_GatewayDownAbortsSubmission(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.Currency = "EUR"
	f.gateway.err = errors.New("upstream timeout")

	_, err := f.svc.Submit(context.Background(), in)
	require.ErrorIs(t, err, entity.ErrCurrencyUnavailable)
	assert.Nil(t, f.expenses.created, "no expense row may exist after a rate failure")
}

func TestExpenseService_Submit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SubmitInput)
		wantErr error
	}{
		{"zero amount", func(in *SubmitInput) { in.Amount = "0" }, entity.ErrInvalidAmount},
		{"negative amount", func(in *SubmitInput) { in.Amount = "-5.00" }, entity.ErrInvalidAmount},
		{"malformed amount", func(in *SubmitInput) { in.Amount = "lots" }, entity.ErrInvalidAmount},
		{"empty description", func(in *SubmitInput) { in.Description = "" }, entity.ErrInvalidDescription},
		{"future date", func(in *SubmitInput) { in.ExpenseDate = time.Now().Add(48 * time.Hour) }, entity.ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := validInput()
			tt.mutate(&in)

			_, err := f.svc.Submit(context.Background(), in)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, f.expenses.created)
		})
	}
}

func TestExpenseService_Submit_UnknownCategory(t *testing.T) {
	f := newFixture()
	logger := zap.NewNop()
	f.svc = NewExpenseService(
		f.expenses, f.approvals, f.rules, f.users,
		&mockCompanyRepo{currency: "USD"}, &mockCategoryRepo{missing: true},
		f.gateway, workflow.NewPlanner(f.directory, logger),
		passthroughTx{}, logger,
	)

	_, err := f.svc.Submit(context.Background(), validInput())
	require.ErrorIs(t, err, entity.ErrInvalidCategory)
}

func TestUserService_AssignManager_CycleRejected(t *testing.T) {
	users := &mockUserRepo{users: map[int64]*entity.User{
		1: {ID: 1, CompanyID: 1, Role: entity.RoleManager, IsActive: true},
		2: {ID: 2, CompanyID: 1, Role: entity.RoleManager, IsActive: true},
		3: {ID: 3, CompanyID: 1, Role: entity.RoleManager, IsActive: true},
	}}
	svc := NewUserService(users, zap.NewNop())
	ctx := context.Background()

	// 3 -> 2 -> 1 is fine; closing 1 -> 3 is a cycle.
	two, three := int64(2), int64(3)
	require.NoError(t, svc.AssignManager(ctx, 3, &two))
	one := int64(1)
	require.NoError(t, svc.AssignManager(ctx, 2, &one))

	err := svc.AssignManager(ctx, 1, &three)
	require.ErrorIs(t, err, entity.ErrManagerCycle)
}

func TestUserService_AssignManager_SelfCycle(t *testing.T) {
	users := &mockUserRepo{users: map[int64]*entity.User{
		1: {ID: 1, CompanyID: 1, Role: entity.RoleManager, IsActive: true},
	}}
	svc := NewUserService(users, zap.NewNop())

	one := int64(1)
	err := svc.AssignManager(context.Background(), 1, &one)
	require.ErrorIs(t, err, entity.ErrManagerCycle)
}

func TestRuleService_Create_Validation(t *testing.T) {
	cfo := int64(20)
	tests := []struct {
		name    string
		rule    entity.ApprovalRule
		wantErr error
	}{
		{
			"percentage out of range",
			entity.ApprovalRule{CompanyID: 1, Name: "r", Type: entity.RulePercentage, RequiredPercentage: 120},
			entity.ErrInvalidRule,
		},
		{
			"specific approver missing",
			entity.ApprovalRule{CompanyID: 1, Name: "r", Type: entity.RuleSpecificApprover},
			entity.ErrInvalidRule,
		},
		{
			"unknown type",
			entity.ApprovalRule{CompanyID: 1, Name: "r", Type: "MAJORITY"},
			entity.ErrInvalidRule,
		},
		{
			"valid hybrid",
			entity.ApprovalRule{CompanyID: 1, Name: "r", Type: entity.RuleHybrid, RequiredPercentage: 60, SpecificApproverID: &cfo},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{users: map[int64]*entity.User{
				20: {ID: 20, CompanyID: 1, Role: entity.RoleManager, IsActive: true},
			}}
			svc := NewRuleService(&mockRuleRepo{}, users, zap.NewNop())

			err := svc.Create(context.Background(), &tt.rule)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.True(t, tt.rule.IsActive)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRuleService_Create_SpecificApproverMustApprove(t *testing.T) {
	clerk := int64(30)
	users := &mockUserRepo{users: map[int64]*entity.User{
		30: {ID: 30, CompanyID: 1, Role: entity.RoleEmployee, IsActive: true},
	}}
	svc := NewRuleService(&mockRuleRepo{}, users, zap.NewNop())

	err := svc.Create(context.Background(), &entity.ApprovalRule{
		CompanyID: 1, Name: "r", Type: entity.RuleSpecificApprover, SpecificApproverID: &clerk,
	})
	require.ErrorIs(t, err, entity.ErrInvalidRule)
}
