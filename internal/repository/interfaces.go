package repository

import (
	"context"

	"ballot-engine/internal/domain"
)

// Tx is the typed view of one store transaction. Every method that reads
// makes the transaction conflict if what it read changes before commit.
type Tx interface {
	// Election reads an election for update
	Election(ctx context.Context, id string) (*domain.Election, error)

	// ReadElection reads an election the transaction will not write. Concurrent
	// readers do not conflict with each other, only with a writer.
	ReadElection(ctx context.Context, id string) (*domain.Election, error)

	// CreateElection stores a new election and claims its organization
	CreateElection(ctx context.Context, e *domain.Election) error

	// SaveElection replaces an existing election document
	SaveElection(ctx context.Context, e *domain.Election) error

	// DeleteElection removes the election and releases its organization claim
	DeleteElection(ctx context.Context, e *domain.Election) error

	// ActiveVoters reads the registered voter counter for update
	ActiveVoters(ctx context.Context, electionID string) (int64, error)

	// Voter reads a voter for update
	Voter(ctx context.Context, electionID, key string) (*domain.Voter, error)

	// CreateVoter stores a voter that must not exist yet and counts it as registered
	CreateVoter(ctx context.Context, v *domain.Voter) error

	// SaveVoter replaces an existing voter
	SaveVoter(ctx context.Context, v *domain.Voter) error

	// DeleteVoter removes a voter and uncounts it if it was active
	DeleteVoter(ctx context.Context, v *domain.Voter) error

	// ReplaceVoter marks old as replaced and stores its successor
	ReplaceVoter(ctx context.Context, old, successor *domain.Voter) error

	// CreateBallot writes the ballot only if none exists for the voter and
	// counts the vote. Returns domain.ErrAlreadyVoted otherwise.
	CreateBallot(ctx context.Context, b *domain.Ballot) error
}

// ElectionRepository defines the interface for election, voter and ballot data operations
type ElectionRepository interface {
	// RunTx runs fn atomically. A storage conflict is reported as
	// domain.ErrTransactionConflict and nothing is written.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetElection retrieves an election with its counters
	GetElection(ctx context.Context, id string) (*domain.Election, error)

	// ListElections retrieves every election
	ListElections(ctx context.Context) ([]*domain.Election, error)

	// GetVoter retrieves a voter by canonical key
	GetVoter(ctx context.Context, electionID, key string) (*domain.Voter, error)

	// ListVoters retrieves every voter of an election, replaced ones included
	ListVoters(ctx context.Context, electionID string) ([]*domain.Voter, error)

	// GetBallot retrieves the ballot cast under a voter key
	GetBallot(ctx context.Context, electionID, key string) (*domain.Ballot, error)

	// ListBallots retrieves every ballot of an election
	ListBallots(ctx context.Context, electionID string) ([]*domain.Ballot, error)

	// PurgeElectionData removes every voter and ballot of an election
	PurgeElectionData(ctx context.Context, electionID string) error

	// Health checks the underlying store
	Health(ctx context.Context) error
}
