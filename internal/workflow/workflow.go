// Package workflow is the approval state machine and the edit-lock guard.
//
// Transition functions mutate the election they are given and return the
// history entry they appended. They never touch storage; callers run them
// inside a transaction against a freshly read election so the status check and
// the write are atomic.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"ballot-engine/internal/domain"
)

// MinReasonLength is the minimum trimmed length of a rejection reason
const MinReasonLength = 5

// IsLocked reports whether setup is read-only in workflow status w, and why
func IsLocked(w domain.WorkflowStatus) (bool, domain.LockReason) {
	switch w {
	case domain.WorkflowPending:
		return true, domain.LockUnderReview
	case domain.WorkflowApproved, domain.WorkflowLocked:
		return true, domain.LockApproved
	}
	return false, ""
}

// CheckEditAllowed returns an *domain.EditLockedError when e's setup is locked
func CheckEditAllowed(e *domain.Election) error {
	if locked, reason := IsLocked(e.Workflow); locked {
		return &domain.EditLockedError{ElectionID: e.ID, Reason: reason}
	}
	return nil
}

// Requirements lists every unmet submission requirement
func Requirements(e *domain.Election, activeVoters int64) []string {
	var missing []string
	if activeVoters <= 0 {
		missing = append(missing, domain.RequirementVoters)
	}
	if len(e.Positions) == 0 {
		missing = append(missing, domain.RequirementPositions)
	}
	for _, p := range e.Positions {
		if len(p.Candidates) == 0 {
			missing = append(missing, domain.RequirementCandidates)
			break
		}
	}
	if !e.Schedule.IsConfigured() {
		missing = append(missing, domain.RequirementSchedule)
	}
	return missing
}

// Submit moves a draft or rejected election to pending once every requirement holds.
// A racer that finds the election already pending gets domain.ErrAlreadySubmitted.
func Submit(e *domain.Election, actor domain.Actor, activeVoters int64, now time.Time) (domain.Transition, error) {
	if !actor.Can(domain.CapSubmit) {
		return domain.Transition{}, domain.ErrForbidden
	}
	switch e.Workflow {
	case domain.WorkflowPending:
		return domain.Transition{}, domain.ErrAlreadySubmitted
	case domain.WorkflowDraft, domain.WorkflowRejected:
	default:
		return domain.Transition{}, invalid(domain.ActionSubmit, e.Workflow)
	}
	if missing := Requirements(e, activeVoters); len(missing) > 0 {
		return domain.Transition{}, &domain.RequirementsNotMetError{Missing: missing}
	}
	return markSubmitted(e, actor, now), nil
}

// AutoSubmit places a freshly created election straight into review. The
// submission requirements are not checked; the election has no setup yet.
func AutoSubmit(e *domain.Election, actor domain.Actor, now time.Time) domain.Transition {
	return markSubmitted(e, actor, now)
}

func markSubmitted(e *domain.Election, actor domain.Actor, now time.Time) domain.Transition {
	e.Approval.SubmittedBy = actor.ID
	e.Approval.SubmittedAt = &now
	e.Status = domain.StatusDraft
	return apply(e, domain.ActionSubmit, domain.WorkflowPending, actor, "", now)
}

// Approve moves a pending election to approved and opens it for voting,
// subject to its phase
func Approve(e *domain.Election, actor domain.Actor, now time.Time) (domain.Transition, error) {
	if !actor.Can(domain.CapApprove) {
		return domain.Transition{}, domain.ErrForbidden
	}
	if e.Workflow != domain.WorkflowPending {
		return domain.Transition{}, invalid(domain.ActionApprove, e.Workflow)
	}
	e.Approval.ApprovedBy = actor.ID
	e.Approval.ApprovedAt = &now
	e.Status = domain.StatusActive
	return apply(e, domain.ActionApprove, domain.WorkflowApproved, actor, "", now), nil
}

// Reject moves a pending election to rejected, making it editable again
func Reject(e *domain.Election, actor domain.Actor, reason string, now time.Time) (domain.Transition, error) {
	if !actor.Can(domain.CapReject) {
		return domain.Transition{}, domain.ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < MinReasonLength {
		return domain.Transition{}, domain.ErrInvalidReason
	}
	if e.Workflow != domain.WorkflowPending {
		return domain.Transition{}, invalid(domain.ActionReject, e.Workflow)
	}
	e.Approval.RejectedBy = actor.ID
	e.Approval.RejectedAt = &now
	e.Approval.RejectionReason = reason
	e.Status = domain.StatusDraft
	return apply(e, domain.ActionReject, domain.WorkflowRejected, actor, reason, now), nil
}

// Revoke sends an approved election back to review
func Revoke(e *domain.Election, actor domain.Actor, now time.Time) (domain.Transition, error) {
	if !actor.Can(domain.CapOverride) {
		return domain.Transition{}, domain.ErrForbidden
	}
	if !e.IsApproved() {
		return domain.Transition{}, invalid(domain.ActionRevoke, e.Workflow)
	}
	if e.Status == domain.StatusDeclared {
		return domain.Transition{}, fmt.Errorf("%w: results already declared", domain.ErrInvalidTransition)
	}
	e.Approval.RevokedBy = actor.ID
	e.Approval.RevokedAt = &now
	e.Status = domain.StatusDraft
	return apply(e, domain.ActionRevoke, domain.WorkflowPending, actor, "", now), nil
}

// Reconsider resets an approved, rejected or pending decision to pending for re-review
func Reconsider(e *domain.Election, actor domain.Actor, now time.Time) (domain.Transition, error) {
	if !actor.Can(domain.CapOverride) {
		return domain.Transition{}, domain.ErrForbidden
	}
	switch e.Workflow {
	case domain.WorkflowRejected, domain.WorkflowApproved, domain.WorkflowLocked, domain.WorkflowPending:
	default:
		return domain.Transition{}, invalid(domain.ActionReconsider, e.Workflow)
	}
	if e.Status == domain.StatusDeclared {
		return domain.Transition{}, fmt.Errorf("%w: results already declared", domain.ErrInvalidTransition)
	}
	e.Approval.ReconsideredBy = actor.ID
	e.Approval.ReconsideredAt = &now
	e.Status = domain.StatusDraft
	return apply(e, domain.ActionReconsider, domain.WorkflowPending, actor, "", now), nil
}

// Declare marks the results of an approved, ended election as declared.
// The workflow status is unchanged.
func Declare(e *domain.Election, actor domain.Actor, ended bool, now time.Time) (domain.Transition, error) {
	if !actor.Can(domain.CapDeclare) {
		return domain.Transition{}, domain.ErrForbidden
	}
	if !e.IsApproved() {
		return domain.Transition{}, invalid(domain.ActionDeclare, e.Workflow)
	}
	if e.Status == domain.StatusDeclared {
		return domain.Transition{}, fmt.Errorf("%w: results already declared", domain.ErrInvalidTransition)
	}
	if !ended {
		return domain.Transition{}, fmt.Errorf("%w: voting has not ended", domain.ErrInvalidTransition)
	}
	e.Status = domain.StatusDeclared
	return apply(e, domain.ActionDeclare, e.Workflow, actor, "", now), nil
}

func apply(e *domain.Election, action domain.TransitionAction, to domain.WorkflowStatus, actor domain.Actor, reason string, now time.Time) domain.Transition {
	tr := domain.Transition{
		Action:    action,
		From:      e.Workflow,
		To:        to,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Reason:    reason,
		At:        now,
	}
	e.Workflow = to
	e.UpdatedAt = now
	e.Approval.History = append(e.Approval.History, tr)
	return tr
}

func invalid(action domain.TransitionAction, from domain.WorkflowStatus) error {
	return fmt.Errorf("%w: cannot %s from %s", domain.ErrInvalidTransition, action, from)
}
