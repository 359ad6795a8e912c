package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeRateGateway resolves an exchange rate for a currency pair. The
// real implementation calls a remote rate service with a bounded timeout
// and one internal retry; callers never see partial results.
type ExchangeRateGateway interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Directory exposes the read-only org-structure lookups the workflow
// planner needs. Backed by the user table here, but the planner only
// depends on this interface so tests can fake it.
type Directory interface {
	// ManagerOf returns the manager's user ID, or ok=false for top-level users.
	ManagerOf(ctx context.Context, userID int64) (int64, bool, error)

	// RoleOf returns the user's role.
	RoleOf(ctx context.Context, userID int64) (string, error)

	// ActiveManagersAndAdmins returns the IDs of all active managers and
	// admins of a company, ordered by user ID.
	ActiveManagersAndAdmins(ctx context.Context, companyID int64) ([]int64, error)
}
