package workflow

// Trigger is an event that can move an expense between lifecycle states.
type Trigger string

const (
	// TriggerReview fires when the first individual decision is recorded
	// while the workflow is not yet complete.
	TriggerReview Trigger = "REVIEW"

	// TriggerApprove fires when every plan requirement is satisfied.
	TriggerApprove Trigger = "APPROVE"

	// TriggerReject fires on any single rejection; one veto is final.
	TriggerReject Trigger = "REJECT"

	// TriggerAutoApprove fires at submission when no workflow applies.
	TriggerAutoApprove Trigger = "AUTO_APPROVE"
)

func (t Trigger) String() string {
	return string(t)
}
