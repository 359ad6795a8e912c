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

// CategoryRepository implements port.CategoryRepository
type CategoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *sqlite.DB, logger *zap.Logger) port.CategoryRepository {
	return &CategoryRepository{
		db:     db,
		logger: logger,
	}
}

// GetActive retrieves an active category scoped to a company. Returns nil
// when the category does not exist, is inactive, or belongs elsewhere.
func (r *CategoryRepository) GetActive(ctx context.Context, id, companyID int64) (*entity.Category, error) {
	query := `
		SELECT id, company_id, name, description, is_active, created_at
		FROM categories
		WHERE id = ? AND company_id = ? AND is_active = 1
	`

	var category entity.Category
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id, companyID).Scan(
		&category.ID,
		&category.CompanyID,
		&category.Name,
		&category.Description,
		&category.IsActive,
		&category.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get category", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &category, nil
}
