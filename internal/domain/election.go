package domain

import (
	"time"

	"ballot-engine/internal/credential"
)

// CountingMode selects how selections are tallied into winners
type CountingMode string

const (
	CountingSingleWinner   CountingMode = "single_winner"
	CountingMultipleWinner CountingMode = "multiple_winner"
	CountingReferendum     CountingMode = "referendum"
	CountingCustom         CountingMode = "custom"
)

// Valid reports whether m is a known counting mode
func (m CountingMode) Valid() bool {
	switch m {
	case CountingSingleWinner, CountingMultipleWinner, CountingReferendum, CountingCustom:
		return true
	}
	return false
}

// WorkflowStatus is the administrative approval state of an election
type WorkflowStatus string

const (
	WorkflowDraft    WorkflowStatus = "draft"
	WorkflowPending  WorkflowStatus = "pending"
	WorkflowApproved WorkflowStatus = "approved"
	WorkflowRejected WorkflowStatus = "rejected"
	// WorkflowLocked is a legacy value; it behaves exactly like approved.
	WorkflowLocked WorkflowStatus = "locked"
)

// ElectionStatus is the operational, phase-derived status of an election
type ElectionStatus string

const (
	StatusDraft     ElectionStatus = "draft"
	StatusScheduled ElectionStatus = "scheduled"
	StatusActive    ElectionStatus = "active"
	StatusEnded     ElectionStatus = "ended"
	// StatusDeclared is set manually and never overwritten by the phase syncer
	StatusDeclared ElectionStatus = "declared"
)

// Schedule is the optional voting window
type Schedule struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// IsConfigured reports whether both bounds are set
func (s Schedule) IsConfigured() bool {
	return s.Start != nil && s.End != nil
}

// Candidate is one selectable choice within a position
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Position is a contested seat or a referendum question
type Position struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	SingleChoice  bool        `json:"single_choice"`
	MaxSelections int         `json:"max_selections,omitempty"`
	Candidates    []Candidate `json:"candidates"`
}

// HasCandidate reports whether candidateID belongs to the position
func (p Position) HasCandidate(candidateID string) bool {
	for _, c := range p.Candidates {
		if c.ID == candidateID {
			return true
		}
	}
	return false
}

// Election is the root document. Voters and ballots are stored separately and
// keyed under the election id.
type Election struct {
	ID               string            `json:"id"`
	OrganizationID   string            `json:"organization_id"`
	Name             string            `json:"name"`
	CountingMode     CountingMode      `json:"counting_mode"`
	CredentialScheme credential.Scheme `json:"credential_scheme"`
	Schedule         Schedule          `json:"schedule"`
	Workflow         WorkflowStatus    `json:"workflow_status"`
	Status           ElectionStatus    `json:"status"`
	Approval         ApprovalRecord    `json:"approval"`
	Positions        []Position        `json:"positions"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`

	// Filled from store counters on read, never persisted in the document
	RegisteredVoters int64 `json:"registered_voters"`
	VotesCast        int64 `json:"votes_cast"`
}

// Position looks up a position by id
func (e *Election) Position(id string) (*Position, bool) {
	for i := range e.Positions {
		if e.Positions[i].ID == id {
			return &e.Positions[i], true
		}
	}
	return nil, false
}

// IsApproved treats the legacy locked status as approved
func (e *Election) IsApproved() bool {
	return e.Workflow == WorkflowApproved || e.Workflow == WorkflowLocked
}

// CreateElectionRequest carries the fields an administrator supplies at creation
type CreateElectionRequest struct {
	OrganizationID   string            `json:"organization_id" validate:"required,max=64"`
	Name             string            `json:"name" validate:"required,min=3,max=200"`
	CountingMode     CountingMode      `json:"counting_mode" validate:"required,oneof=single_winner multiple_winner referendum custom"`
	CredentialScheme credential.Scheme `json:"credential_scheme" validate:"required,oneof=email_phone student_id staff_id member_id national_id custom_pin"`
	Schedule         *Schedule         `json:"schedule,omitempty"`
}

// PositionRequest creates or updates a position
type PositionRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=200"`
	SingleChoice  *bool  `json:"single_choice,omitempty"`
	MaxSelections int    `json:"max_selections" validate:"gte=0,lte=100"`
}

// CandidateRequest adds a candidate to a position
type CandidateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// ScheduleRequest sets the voting window
type ScheduleRequest struct {
	Start *time.Time `json:"start" validate:"required"`
	End   *time.Time `json:"end" validate:"required"`
}
