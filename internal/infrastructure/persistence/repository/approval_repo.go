package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

const approvalColumns = `
	id, expense_id, approver_id, status, sequence_order,
	is_required, in_pool, comments, decided_at, created_at`

// CreateBatch inserts all approval slots of a workflow plan.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, records []*entity.ApprovalRecord) error {
	query := `
		INSERT INTO approvals (
			expense_id, approver_id, status, sequence_order, is_required, in_pool, comments
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	for _, rec := range records {
		result, err := exec.ExecContext(ctx, query,
			rec.ExpenseID,
			rec.ApproverID,
			rec.Status,
			rec.SequenceOrder,
			rec.IsRequired,
			rec.InPool,
			rec.Comments,
		)
		if err != nil {
			r.logger.Error("failed to create approval record",
				zap.Int64("expense_id", rec.ExpenseID),
				zap.Int64("approver_id", rec.ApproverID),
				zap.Error(err))
			return fmt.Errorf("create approval record: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		rec.ID = id
	}
	return nil
}

// GetByExpenseAndApprover returns the approver's slot on an expense, or
// nil when the user is not part of the plan.
func (r *ApprovalRepository) GetByExpenseAndApprover(ctx context.Context, expenseID, approverID int64) (*entity.ApprovalRecord, error) {
	query := `SELECT` + approvalColumns + `
		FROM approvals WHERE expense_id = ? AND approver_id = ?`

	row := r.db.Executor(ctx).QueryRowContext(ctx, query, expenseID, approverID)
	record, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get approval record",
			zap.Int64("expense_id", expenseID),
			zap.Int64("approver_id", approverID),
			zap.Error(err))
		return nil, fmt.Errorf("get approval record: %w", err)
	}
	return record, nil
}

// GetByExpenseID returns all slots of an expense's plan in sequence order.
func (r *ApprovalRepository) GetByExpenseID(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	query := `SELECT` + approvalColumns + `
		FROM approvals WHERE expense_id = ?
		ORDER BY sequence_order`

	return r.list(ctx, query, expenseID)
}

// Decide records the slot's single transition. The status guard makes a
// double decision a no-op at the SQL level; callers detect it via the
// affected-row count.
func (r *ApprovalRepository) Decide(ctx context.Context, id int64, status, comments string) error {
	query := `
		UPDATE approvals
		SET status = ?, comments = ?, decided_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, status, comments, id, entity.ApprovalPending)
	if err != nil {
		r.logger.Error("failed to decide approval", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("decide approval: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("approval %d: %w", id, entity.ErrAlreadyDecided)
	}
	return nil
}

// ListPendingForApprover returns the approver's open slots, oldest first.
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error) {
	query := `SELECT` + approvalColumns + `
		FROM approvals WHERE approver_id = ? AND status = ?
		ORDER BY created_at, id`

	return r.list(ctx, query, approverID, entity.ApprovalPending)
}

// ListDecidedByApprover returns the approver's past decisions, newest first.
func (r *ApprovalRepository) ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.ApprovalRecord, error) {
	query := `SELECT` + approvalColumns + `
		FROM approvals WHERE approver_id = ? AND status != ?
		ORDER BY decided_at DESC, id DESC
		LIMIT ?`

	return r.list(ctx, query, approverID, entity.ApprovalPending, limit)
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRecord, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list approvals", zap.Error(err))
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalRecord
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanApproval(row rowScanner) (*entity.ApprovalRecord, error) {
	var (
		record    entity.ApprovalRecord
		decidedAt sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.ExpenseID,
		&record.ApproverID,
		&record.Status,
		&record.SequenceOrder,
		&record.IsRequired,
		&record.InPool,
		&record.Comments,
		&decidedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if decidedAt.Valid {
		record.DecidedAt = &decidedAt.Time
	}
	return &record, nil
}
