package domain

import (
	"errors"
	"fmt"
	"strings"

	"ballot-engine/internal/credential"
)

var (
	// ErrInvalidFormat: a credential failed its scheme's validation
	ErrInvalidFormat = credential.ErrInvalidFormat

	ErrElectionNotFound        = errors.New("election not found")
	ErrOrganizationHasElection = errors.New("organization already has an election")
	ErrVoterNotFound           = errors.New("voter not found")
	ErrVoterExists             = errors.New("voter already registered")
	ErrVoterHasVoted           = errors.New("voter has already cast a ballot")
	ErrPositionNotFound        = errors.New("position not found")
	ErrCandidateNotFound       = errors.New("candidate not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidChoices          = errors.New("invalid ballot choices")
	ErrSecondaryMismatch       = errors.New("secondary credential does not match")

	ErrEditLocked         = errors.New("election setup is locked")
	ErrRequirementsNotMet = errors.New("submission requirements not met")
	ErrInvalidTransition  = errors.New("workflow transition not allowed")
	ErrForbidden          = errors.New("actor lacks the required capability")
	ErrInvalidReason      = errors.New("rejection reason must be at least 5 characters")

	// Idempotent no-ops. Callers should not present these as failures.
	ErrAlreadyVoted     = errors.New("voter has already voted")
	ErrAlreadySubmitted = errors.New("election is already under review")

	ErrNotActive         = errors.New("election is not open for voting")
	ErrNotYetStarted     = errors.New("voting has not started yet")
	ErrEnded             = errors.New("voting has ended")
	ErrViewLimitExceeded = errors.New("results view limit exceeded")

	// ErrTransactionConflict is the only error retried automatically
	ErrTransactionConflict = errors.New("transaction conflict")
)

// LockReason says why setup is locked
type LockReason string

const (
	LockUnderReview LockReason = "under_review"
	LockApproved    LockReason = "approved"
)

// EditLockedError is returned by every setup mutation attempted while locked
type EditLockedError struct {
	ElectionID string
	Reason     LockReason
}

func (e *EditLockedError) Error() string {
	switch e.Reason {
	case LockUnderReview:
		return "election setup is locked while under review"
	case LockApproved:
		return "election setup is locked because the election is approved"
	}
	return ErrEditLocked.Error()
}

func (e *EditLockedError) Is(target error) bool {
	return target == ErrEditLocked
}

// Submission requirement names, reported verbatim to the actor
const (
	RequirementVoters     = "Voters"
	RequirementPositions  = "Positions"
	RequirementCandidates = "Candidates"
	RequirementSchedule   = "Schedule"
)

// RequirementsNotMetError lists every unmet requirement, not just the first
type RequirementsNotMetError struct {
	Missing []string
}

func (e *RequirementsNotMetError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRequirementsNotMet.Error(), strings.Join(e.Missing, ", "))
}

func (e *RequirementsNotMetError) Is(target error) bool {
	return target == ErrRequirementsNotMet
}
