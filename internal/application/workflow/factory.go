package workflow

import (
	"fmt"

	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// BuildExpenseMachine creates a state machine configured with the expense
// approval lifecycle, positioned at the given status.
func BuildExpenseMachine(status string) (*domainwf.Machine, error) {
	builder := domainwf.NewBuilder()

	builder.
		Permit(domainwf.StatePending, domainwf.TriggerReview, domainwf.StateUnderReview).
		Permit(domainwf.StatePending, domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.StatePending, domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.StatePending, domainwf.TriggerAutoApprove, domainwf.StateApproved).
		Permit(domainwf.StateUnderReview, domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.StateUnderReview, domainwf.TriggerReject, domainwf.StateRejected)

	// APPROVED and REJECTED are terminal - no outgoing transitions.

	machine, err := builder.Build(domainwf.State(status))
	if err != nil {
		return nil, fmt.Errorf("build expense machine: %w", err)
	}
	return machine, nil
}
