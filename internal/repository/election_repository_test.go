package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/docstore/redisstore"
	"ballot-engine/pkg/redis"
)

func setupRepository(t *testing.T) *DocumentRepository {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewDocumentRepository(redisstore.New(client, zap.NewNop()))
}

func createElection(t *testing.T, repo *DocumentRepository, id, org string) *domain.Election {
	e := &domain.Election{ID: id, OrganizationID: org, Name: "Board", Workflow: domain.WorkflowDraft, Status: domain.StatusDraft}
	require.NoError(t, repo.RunTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateElection(ctx, e)
	}))
	return e
}

func TestDocumentRepository_OneElectionPerOrganization(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	createElection(t, repo, "el-1", "org-1")

	err := repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateElection(ctx, &domain.Election{ID: "el-2", OrganizationID: "org-1"})
	})
	assert.ErrorIs(t, err, domain.ErrOrganizationHasElection)

	_, err = repo.GetElection(ctx, "el-2")
	assert.ErrorIs(t, err, domain.ErrElectionNotFound)

	e, err := repo.GetElection(ctx, "el-1")
	require.NoError(t, err)
	require.NoError(t, repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteElection(ctx, e)
	}))
	createElection(t, repo, "el-3", "org-1")
}

func TestDocumentRepository_VotersAndCounters(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	createElection(t, repo, "el-1", "org-1")

	now := time.Now().UTC()
	for _, key := range []string{"UG-1", "UG-2", "UG-3"} {
		v := &domain.Voter{ElectionID: "el-1", Key: key, CreatedAt: now}
		require.NoError(t, repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreateVoter(ctx, v)
		}))
	}

	err := repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateVoter(ctx, &domain.Voter{ElectionID: "el-1", Key: "UG-1"})
	})
	assert.ErrorIs(t, err, domain.ErrVoterExists)

	old, err := repo.GetVoter(ctx, "el-1", "UG-2")
	require.NoError(t, err)
	old.IsReplaced = true
	old.ReplacedBy = "UG-4"
	require.NoError(t, repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ReplaceVoter(ctx, old, &domain.Voter{ElectionID: "el-1", Key: "UG-4"})
	}))

	gone, err := repo.GetVoter(ctx, "el-1", "UG-3")
	require.NoError(t, err)
	require.NoError(t, repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteVoter(ctx, gone)
	}))

	e, err := repo.GetElection(ctx, "el-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.RegisteredVoters)

	require.NoError(t, repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		n, err := tx.ActiveVoters(ctx, "el-1")
		assert.Equal(t, int64(2), n)
		return err
	}))

	voters, err := repo.ListVoters(ctx, "el-1")
	require.NoError(t, err)
	assert.Len(t, voters, 3)

	_, err = repo.GetVoter(ctx, "el-1", "UG-3")
	assert.ErrorIs(t, err, domain.ErrVoterNotFound)
}

func TestDocumentRepository_BallotAtMostOnce(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	createElection(t, repo, "el-1", "org-1")

	b := &domain.Ballot{ElectionID: "el-1", VoterKey: "UG-1", Choices: map[string][]string{"president": {"a"}}}
	require.NoError(t, repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateBallot(ctx, b)
	}))
	err := repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateBallot(ctx, b)
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	e, err := repo.GetElection(ctx, "el-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.VotesCast)

	got, err := repo.GetBallot(ctx, "el-1", "UG-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"a"}, got.Choices["president"])

	none, err := repo.GetBallot(ctx, "el-1", "UG-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDocumentRepository_PurgeIsScopedToElection(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	createElection(t, repo, "el-1", "org-1")
	createElection(t, repo, "el-10", "org-2")

	for _, id := range []string{"el-1", "el-10"} {
		electionID := id
		require.NoError(t, repo.RunTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.CreateVoter(ctx, &domain.Voter{ElectionID: electionID, Key: "V-1"}); err != nil {
				return err
			}
			return tx.CreateBallot(ctx, &domain.Ballot{ElectionID: electionID, VoterKey: "V-1"})
		}))
	}

	require.NoError(t, repo.PurgeElectionData(ctx, "el-1"))

	voters, err := repo.ListVoters(ctx, "el-1")
	require.NoError(t, err)
	assert.Empty(t, voters)
	ballots, err := repo.ListBallots(ctx, "el-1")
	require.NoError(t, err)
	assert.Empty(t, ballots)

	ballots, err = repo.ListBallots(ctx, "el-10")
	require.NoError(t, err)
	assert.Len(t, ballots, 1)

	elections, err := repo.ListElections(ctx)
	require.NoError(t, err)
	assert.Len(t, elections, 2)
}
