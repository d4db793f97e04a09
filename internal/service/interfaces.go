package service

import (
	"context"
	"time"

	"ballot-engine/internal/domain"
)

// AuthService defines the interface for token operations
type AuthService interface {
	// IssueAdminToken signs a token for an administrative actor
	IssueAdminToken(actor domain.Actor) (*domain.AdminToken, error)

	// ValidateAdminToken validates an admin token and returns its actor
	ValidateAdminToken(ctx context.Context, token string) (*domain.Actor, error)

	// IssueVoterToken signs a session token for a resolved voter
	IssueVoterToken(electionID, voterKey string) (string, time.Time, error)

	// ValidateVoterToken validates a voter session token
	ValidateVoterToken(ctx context.Context, token string) (*domain.VoterIdentity, error)
}

// ElectionService defines election setup and approval workflow operations.
// Every setup mutation is refused with domain.ErrEditLocked while the
// election is under review or approved.
type ElectionService interface {
	CreateElection(ctx context.Context, actor domain.Actor, req *domain.CreateElectionRequest) (*domain.Election, error)
	GetElection(ctx context.Context, actor domain.Actor, electionID string) (*domain.Election, error)
	DeleteElection(ctx context.Context, actor domain.Actor, electionID string) error

	// CheckEditAllowed reports whether setup may currently change, and why not
	CheckEditAllowed(ctx context.Context, electionID string) (*domain.EditStatus, error)

	SetSchedule(ctx context.Context, actor domain.Actor, electionID string, req *domain.ScheduleRequest) (*domain.Election, error)
	AddPosition(ctx context.Context, actor domain.Actor, electionID string, req *domain.PositionRequest) (*domain.Position, error)
	UpdatePosition(ctx context.Context, actor domain.Actor, electionID, positionID string, req *domain.PositionRequest) (*domain.Position, error)
	RemovePosition(ctx context.Context, actor domain.Actor, electionID, positionID string) error
	AddCandidate(ctx context.Context, actor domain.Actor, electionID, positionID string, req *domain.CandidateRequest) (*domain.Candidate, error)
	RemoveCandidate(ctx context.Context, actor domain.Actor, electionID, positionID, candidateID string) error

	RegisterVoter(ctx context.Context, actor domain.Actor, electionID string, req *domain.RegisterVoterRequest) (*domain.Voter, error)
	UpdateVoter(ctx context.Context, actor domain.Actor, electionID, voterKey string, req *domain.UpdateVoterRequest) (*domain.Voter, error)
	ReplaceVoter(ctx context.Context, actor domain.Actor, electionID, voterKey string, req *domain.ReplaceVoterRequest) (*domain.Voter, error)
	RemoveVoter(ctx context.Context, actor domain.Actor, electionID, voterKey string) error
	ListVoters(ctx context.Context, actor domain.Actor, electionID string, includeReplaced bool) ([]*domain.Voter, error)

	SubmitForApproval(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error)
	Approve(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error)
	Reject(ctx context.Context, actor domain.Actor, electionID, reason string) (*domain.TransitionResult, error)
	Revoke(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error)
	Reconsider(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error)
	DeclareResults(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error)
	History(ctx context.Context, actor domain.Actor, electionID string) ([]domain.Transition, error)

	// Results returns the current tally to an administrator
	Results(ctx context.Context, actor domain.Actor, electionID string) (*domain.Results, error)
}

// BallotService defines voter-facing operations
type BallotService interface {
	// ResolveCredential returns the canonical voter key for raw under scheme
	ResolveCredential(scheme, raw string) (string, error)

	// Login resolves a voter and opens a session
	Login(ctx context.Context, electionID string, req *domain.VoterLoginRequest) (*domain.VoterSession, error)

	// SubmitBallot commits at most one ballot per voter key
	SubmitBallot(ctx context.Context, electionID, voterKey string, choices map[string][]string) (*domain.BallotReceipt, error)

	// EnterResultsView decides what a returning voter may see, consuming one
	// post-result view once voting has ended
	EnterResultsView(ctx context.Context, electionID, voterKey string) (*domain.ResultsAccess, error)
}

// PhaseSyncer defines the background phase write-back routine
type PhaseSyncer interface {
	// Start begins periodic synchronization
	Start(ctx context.Context) error

	// Stop waits for a running sync to finish and stops the schedule
	Stop(ctx context.Context) error

	// SyncOnce writes back every changed phase-derived status and returns how many changed
	SyncOnce(ctx context.Context) (int, error)
}

// Services aggregates all service interfaces
type Services struct {
	Auth      AuthService
	Elections ElectionService
	Ballots   BallotService
	Syncer    PhaseSyncer
}
