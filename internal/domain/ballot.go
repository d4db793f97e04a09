package domain

import (
	"time"
)

// Ballot is immutable once written. It shares its key with the voter, which is
// what makes one ballot per voter enforceable as one document per key.
type Ballot struct {
	ElectionID  string              `json:"election_id"`
	VoterKey    string              `json:"voter_key"`
	Choices     map[string][]string `json:"choices"`
	Receipt     string              `json:"receipt"`
	CommittedAt time.Time           `json:"committed_at"`
}

// SubmitBallotRequest maps position ids to selected candidate ids
type SubmitBallotRequest struct {
	Choices map[string][]string `json:"choices" validate:"required,min=1"`
}

// BallotReceipt is returned after a successful commit
type BallotReceipt struct {
	ElectionID  string    `json:"election_id"`
	Receipt     string    `json:"receipt"`
	CommittedAt time.Time `json:"committed_at"`
	Message     string    `json:"message"`
}

// AccessMode tells the client what a voter may see on entry
type AccessMode string

const (
	// AccessBallot: the voter may still cast a ballot
	AccessBallot AccessMode = "ballot"
	// AccessVoted: voting is ongoing and the voter already voted
	AccessVoted AccessMode = "voted"
	// AccessResults: read-only results after voting ended
	AccessResults AccessMode = "results"
)

// ResultsAccess is the outcome of a voter entering an election
type ResultsAccess struct {
	ElectionID     string     `json:"election_id"`
	Mode           AccessMode `json:"mode"`
	Phase          string     `json:"phase"`
	ViewCount      int        `json:"view_count"`
	ViewsRemaining int        `json:"views_remaining"`
	Results        *Results   `json:"results,omitempty"`
}

// CandidateResult is one candidate with its ranking within a position
type CandidateResult struct {
	Candidate
	Votes      int     `json:"votes"`
	Rank       int     `json:"rank"`
	Percentage float64 `json:"percentage"`
	IsWinner   bool    `json:"is_winner"`
}

// PositionResult holds the ranked tally for one position
type PositionResult struct {
	PositionID string            `json:"position_id"`
	Name       string            `json:"name"`
	Ballots    int               `json:"ballots"`
	Candidates []CandidateResult `json:"candidates"`
	Winners    []CandidateResult `json:"winners"`
}

// Results is the full tally for an election
type Results struct {
	ElectionID       string           `json:"election_id"`
	CountingMode     CountingMode     `json:"counting_mode"`
	TotalVotes       int              `json:"total_votes"`
	RegisteredVoters int64            `json:"registered_voters"`
	Turnout          float64          `json:"turnout"`
	Declared         bool             `json:"declared"`
	Positions        []PositionResult `json:"positions"`
	ComputedAt       time.Time        `json:"computed_at"`
}
