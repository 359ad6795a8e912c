package entity

import "time"

// User is an employee, manager or admin of a company. ManagerID is a
// self-reference forming the reporting tree; assignment must keep the
// tree acyclic, which UserService enforces with an upward walk.
type User struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	ManagerID *int64    `json:"manager_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns "First Last".
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// CanApprove reports whether the user's role allows deciding approvals.
func (u *User) CanApprove() bool {
	return u.Role == RoleManager || u.Role == RoleAdmin
}
