package repository

import (
	"context"
	"errors"
	"fmt"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/docstore"
)

const (
	collectionElections     = "elections"
	collectionOrganizations = "organizations"
	collectionVoters        = "voters"
	collectionBallots       = "ballots"

	counterRegisteredVoters = "registered_voters"
	counterVotesCast        = "votes_cast"
)

type organizationClaim struct {
	ElectionID string `json:"election_id"`
}

type DocumentRepository struct {
	docs docstore.Store
}

var _ ElectionRepository = (*DocumentRepository)(nil)

func NewDocumentRepository(docs docstore.Store) *DocumentRepository {
	return &DocumentRepository{docs: docs}
}

// memberID keys voters and ballots under their election
func memberID(electionID, key string) string {
	return electionID + ":" + key
}

func memberPrefix(electionID string) string {
	return electionID + ":"
}

func (r *DocumentRepository) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := r.docs.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return fn(ctx, &documentTx{tx: tx})
	})
	if errors.Is(err, docstore.ErrConflict) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	return err
}

func (r *DocumentRepository) GetElection(ctx context.Context, id string) (*domain.Election, error) {
	var e domain.Election
	if err := r.docs.Get(ctx, collectionElections, id, &e); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, domain.ErrElectionNotFound
		}
		return nil, fmt.Errorf("failed to get election: %w", err)
	}
	if err := r.fillCounters(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *DocumentRepository) ListElections(ctx context.Context) ([]*domain.Election, error) {
	docs, err := r.docs.List(ctx, collectionElections, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	elections := make([]*domain.Election, 0, len(docs))
	for _, d := range docs {
		var e domain.Election
		if err := d.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode election %s: %w", d.ID, err)
		}
		elections = append(elections, &e)
	}
	return elections, nil
}

func (r *DocumentRepository) GetVoter(ctx context.Context, electionID, key string) (*domain.Voter, error) {
	var v domain.Voter
	if err := r.docs.Get(ctx, collectionVoters, memberID(electionID, key), &v); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, domain.ErrVoterNotFound
		}
		return nil, fmt.Errorf("failed to get voter: %w", err)
	}
	return &v, nil
}

func (r *DocumentRepository) ListVoters(ctx context.Context, electionID string) ([]*domain.Voter, error) {
	docs, err := r.docs.List(ctx, collectionVoters, memberPrefix(electionID))
	if err != nil {
		return nil, fmt.Errorf("failed to list voters: %w", err)
	}
	voters := make([]*domain.Voter, 0, len(docs))
	for _, d := range docs {
		var v domain.Voter
		if err := d.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode voter %s: %w", d.ID, err)
		}
		voters = append(voters, &v)
	}
	return voters, nil
}

func (r *DocumentRepository) GetBallot(ctx context.Context, electionID, key string) (*domain.Ballot, error) {
	var b domain.Ballot
	if err := r.docs.Get(ctx, collectionBallots, memberID(electionID, key), &b); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ballot: %w", err)
	}
	return &b, nil
}

func (r *DocumentRepository) ListBallots(ctx context.Context, electionID string) ([]*domain.Ballot, error) {
	docs, err := r.docs.List(ctx, collectionBallots, memberPrefix(electionID))
	if err != nil {
		return nil, fmt.Errorf("failed to list ballots: %w", err)
	}
	ballots := make([]*domain.Ballot, 0, len(docs))
	for _, d := range docs {
		var b domain.Ballot
		if err := d.Decode(&b); err != nil {
			return nil, fmt.Errorf("failed to decode ballot %s: %w", d.ID, err)
		}
		ballots = append(ballots, &b)
	}
	return ballots, nil
}

func (r *DocumentRepository) PurgeElectionData(ctx context.Context, electionID string) error {
	for _, c := range []string{collectionBallots, collectionVoters} {
		if _, err := r.docs.DeletePrefix(ctx, c, memberPrefix(electionID)); err != nil {
			return fmt.Errorf("failed to purge %s: %w", c, err)
		}
	}
	return nil
}

func (r *DocumentRepository) Health(ctx context.Context) error {
	return r.docs.Health(ctx)
}

func (r *DocumentRepository) fillCounters(ctx context.Context, e *domain.Election) error {
	counters, err := r.docs.Counters(ctx, collectionElections, e.ID)
	if err != nil {
		return fmt.Errorf("failed to read election counters: %w", err)
	}
	e.RegisteredVoters = counters[counterRegisteredVoters]
	e.VotesCast = counters[counterVotesCast]
	return nil
}

type documentTx struct {
	tx docstore.Tx
}

func (t *documentTx) Election(ctx context.Context, id string) (*domain.Election, error) {
	var e domain.Election
	if err := t.tx.Get(ctx, collectionElections, id, &e); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, domain.ErrElectionNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (t *documentTx) ReadElection(ctx context.Context, id string) (*domain.Election, error) {
	var e domain.Election
	if err := t.tx.Read(ctx, collectionElections, id, &e); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, domain.ErrElectionNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (t *documentTx) CreateElection(ctx context.Context, e *domain.Election) error {
	err := t.tx.Create(ctx, collectionOrganizations, e.OrganizationID, organizationClaim{ElectionID: e.ID})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return domain.ErrOrganizationHasElection
	}
	if err != nil {
		return err
	}
	return t.tx.Create(ctx, collectionElections, e.ID, storedElection(e))
}

func (t *documentTx) SaveElection(ctx context.Context, e *domain.Election) error {
	return t.tx.Put(ctx, collectionElections, e.ID, storedElection(e))
}

func (t *documentTx) DeleteElection(ctx context.Context, e *domain.Election) error {
	if err := t.tx.Delete(ctx, collectionOrganizations, e.OrganizationID); err != nil {
		return err
	}
	return t.tx.Delete(ctx, collectionElections, e.ID)
}

func (t *documentTx) ActiveVoters(ctx context.Context, electionID string) (int64, error) {
	return t.tx.Counter(ctx, collectionElections, electionID, counterRegisteredVoters)
}

func (t *documentTx) Voter(ctx context.Context, electionID, key string) (*domain.Voter, error) {
	var v domain.Voter
	if err := t.tx.Get(ctx, collectionVoters, memberID(electionID, key), &v); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, domain.ErrVoterNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (t *documentTx) CreateVoter(ctx context.Context, v *domain.Voter) error {
	err := t.tx.Create(ctx, collectionVoters, memberID(v.ElectionID, v.Key), v)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return domain.ErrVoterExists
	}
	if err != nil {
		return err
	}
	return t.tx.Incr(ctx, collectionElections, v.ElectionID, counterRegisteredVoters, 1)
}

func (t *documentTx) SaveVoter(ctx context.Context, v *domain.Voter) error {
	return t.tx.Put(ctx, collectionVoters, memberID(v.ElectionID, v.Key), v)
}

func (t *documentTx) DeleteVoter(ctx context.Context, v *domain.Voter) error {
	if err := t.tx.Delete(ctx, collectionVoters, memberID(v.ElectionID, v.Key)); err != nil {
		return err
	}
	if !v.IsActive() {
		return nil
	}
	return t.tx.Incr(ctx, collectionElections, v.ElectionID, counterRegisteredVoters, -1)
}

func (t *documentTx) ReplaceVoter(ctx context.Context, old, successor *domain.Voter) error {
	if err := t.CreateVoter(ctx, successor); err != nil {
		return err
	}
	if err := t.SaveVoter(ctx, old); err != nil {
		return err
	}
	return t.tx.Incr(ctx, collectionElections, old.ElectionID, counterRegisteredVoters, -1)
}

func (t *documentTx) CreateBallot(ctx context.Context, b *domain.Ballot) error {
	err := t.tx.Create(ctx, collectionBallots, memberID(b.ElectionID, b.VoterKey), b)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return domain.ErrAlreadyVoted
	}
	if err != nil {
		return err
	}
	return t.tx.Incr(ctx, collectionElections, b.ElectionID, counterVotesCast, 1)
}

// storedElection drops the counter fields, which live outside the document
func storedElection(e *domain.Election) *domain.Election {
	stored := *e
	stored.RegisteredVoters = 0
	stored.VotesCast = 0
	return &stored
}
