package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// UserService maintains the reporting tree. Its one non-trivial duty is
// keeping the manager graph acyclic on assignment rather than trusting
// reads to cope with cycles later.
type UserService struct {
	users  port.UserRepository
	logger *zap.Logger
}

// NewUserService creates a UserService.
func NewUserService(users port.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// AssignManager sets (or clears, with nil) a user's manager. The manager
// must be an active manager or admin of the same company, and the
// assignment must not close a cycle in the reporting chain.
func (s *UserService) AssignManager(ctx context.Context, userID int64, managerID *int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user %d", entity.ErrNotFound, userID)
	}

	if managerID != nil {
		manager, err := s.users.GetByID(ctx, *managerID)
		if err != nil {
			return err
		}
		if manager == nil || !manager.IsActive || manager.CompanyID != user.CompanyID {
			return fmt.Errorf("%w: manager %d", entity.ErrNotFound, *managerID)
		}
		if !manager.CanApprove() {
			return fmt.Errorf("%w: user %d cannot be a manager with role %s",
				entity.ErrInvalidRule, *managerID, manager.Role)
		}
		if err := s.checkCycle(ctx, userID, *managerID); err != nil {
			return err
		}
	}

	if err := s.users.SetManager(ctx, userID, managerID); err != nil {
		return err
	}

	s.logger.Info("manager assigned",
		zap.Int64("user_id", userID),
		zap.Any("manager_id", managerID))
	return nil
}

// checkCycle walks the manager chain upward from the candidate manager.
// Reaching the user being assigned means the assignment would close a
// loop. The visited set bounds the walk even if the stored chain is
// already corrupt.
func (s *UserService) checkCycle(ctx context.Context, userID, managerID int64) error {
	visited := map[int64]bool{userID: true}
	current := managerID
	for {
		if visited[current] {
			return fmt.Errorf("%w: user %d is already above %d in the chain",
				entity.ErrManagerCycle, userID, managerID)
		}
		visited[current] = true

		u, err := s.users.GetByID(ctx, current)
		if err != nil {
			return err
		}
		if u == nil || u.ManagerID == nil {
			return nil
		}
		current = *u.ManagerID
	}
}

// Get returns a user by ID, or ErrNotFound.
func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", entity.ErrNotFound, id)
	}
	return user, nil
}

// ListCompanyUsers returns all users of a company.
func (s *UserService) ListCompanyUsers(ctx context.Context, companyID int64) ([]*entity.User, error) {
	return s.users.ListByCompany(ctx, companyID)
}
