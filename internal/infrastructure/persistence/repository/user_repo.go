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

// UserRepository implements port.UserRepository and port.Directory on the
// users table. The directory methods serve the workflow planner.
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `
	id, company_id, email, first_name, last_name, role,
	manager_id, is_active, created_at, updated_at`

// GetByID retrieves a user by ID. Returns nil when not found.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = ?`

	row := r.db.Executor(ctx).QueryRowContext(ctx, query, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get user", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// SetManager assigns or clears a user's manager.
func (r *UserRepository) SetManager(ctx context.Context, userID int64, managerID *int64) error {
	query := `UPDATE users SET manager_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, managerID, userID)
	if err != nil {
		r.logger.Error("failed to set manager", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("set manager: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", userID, entity.ErrNotFound)
	}
	return nil
}

// ListByCompany returns all users of a company ordered by ID.
func (r *UserRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE company_id = ? ORDER BY id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, companyID)
	if err != nil {
		r.logger.Error("failed to list users", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ManagerOf implements port.Directory. ok is false for top-level users and
// for users whose manager is inactive.
func (r *UserRepository) ManagerOf(ctx context.Context, userID int64) (int64, bool, error) {
	query := `
		SELECT m.id
		FROM users u
		JOIN users m ON m.id = u.manager_id
		WHERE u.id = ? AND m.is_active = 1
	`

	var managerID int64
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, userID).Scan(&managerID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("manager of %d: %w", userID, err)
	}
	return managerID, true, nil
}

// RoleOf implements port.Directory.
func (r *UserRepository) RoleOf(ctx context.Context, userID int64) (string, error) {
	query := `SELECT role FROM users WHERE id = ?`

	var role string
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user %d: %w", userID, entity.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("role of %d: %w", userID, err)
	}
	return role, nil
}

// ActiveManagersAndAdmins implements port.Directory.
func (r *UserRepository) ActiveManagersAndAdmins(ctx context.Context, companyID int64) ([]int64, error) {
	query := `
		SELECT id FROM users
		WHERE company_id = ? AND is_active = 1 AND role IN (?, ?)
		ORDER BY id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, companyID, entity.RoleManager, entity.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		user      entity.User
		managerID sql.NullInt64
	)

	err := row.Scan(
		&user.ID,
		&user.CompanyID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&managerID,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if managerID.Valid {
		user.ManagerID = &managerID.Int64
	}
	return &user, nil
}

// Verify interface compliance
var (
	_ port.UserRepository = (*UserRepository)(nil)
	_ port.Directory      = (*UserRepository)(nil)
)
