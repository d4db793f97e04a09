package domain

import "time"

// TransitionAction names a workflow transition
type TransitionAction string

const (
	ActionSubmit     TransitionAction = "submit"
	ActionApprove    TransitionAction = "approve"
	ActionReject     TransitionAction = "reject"
	ActionRevoke     TransitionAction = "revoke"
	ActionReconsider TransitionAction = "reconsider"
	ActionDeclare    TransitionAction = "declare"
)

// Transition is one entry of the append-only approval history
type Transition struct {
	Action    TransitionAction `json:"action"`
	From      WorkflowStatus   `json:"from"`
	To        WorkflowStatus   `json:"to"`
	ActorID   string           `json:"actor_id"`
	ActorRole Role             `json:"actor_role"`
	Reason    string           `json:"reason,omitempty"`
	At        time.Time        `json:"at"`
}

// ApprovalRecord is embedded in the election. A transition only writes its own
// actor/time fields; the others keep whatever the earlier transitions set.
type ApprovalRecord struct {
	SubmittedBy     string       `json:"submitted_by,omitempty"`
	SubmittedAt     *time.Time   `json:"submitted_at,omitempty"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	RejectedBy      string       `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	RevokedBy       string       `json:"revoked_by,omitempty"`
	RevokedAt       *time.Time   `json:"revoked_at,omitempty"`
	ReconsideredBy  string       `json:"reconsidered_by,omitempty"`
	ReconsideredAt  *time.Time   `json:"reconsidered_at,omitempty"`
	History         []Transition `json:"history"`
}

// TransitionResult is returned by every workflow operation
type TransitionResult struct {
	ElectionID string           `json:"election_id"`
	Action     TransitionAction `json:"action"`
	From       WorkflowStatus   `json:"from"`
	To         WorkflowStatus   `json:"to"`
	Status     ElectionStatus   `json:"status"`
	NoOp       bool             `json:"no_op"`
	Message    string           `json:"message"`
	At         time.Time        `json:"at"`
}

// RejectRequest carries the mandatory rejection reason
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// EditStatus answers whether election setup may currently be changed
type EditStatus struct {
	ElectionID string         `json:"election_id"`
	Allowed    bool           `json:"allowed"`
	Reason     LockReason     `json:"reason,omitempty"`
	Workflow   WorkflowStatus `json:"workflow_status"`
}
