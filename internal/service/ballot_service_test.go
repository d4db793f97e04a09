package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballot-engine/internal/credential"
	"ballot-engine/internal/domain"
)

func TestBallotService_EndToEnd(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)

	key, err := env.ballots.ResolveCredential("email_phone", voterPhone)
	require.NoError(t, err)
	assert.Equal(t, f.voterKey, key)

	// Before the window opens
	env.clock.Set(windowStart.Add(-10 * time.Minute))
	_, err = env.ballots.SubmitBallot(ctx, f.electionID, key, f.vote(f.candidateA))
	assert.ErrorIs(t, err, domain.ErrNotYetStarted)

	env.clock.Set(windowStart.Add(5 * time.Minute))
	session, err := env.ballots.Login(ctx, f.electionID, &domain.VoterLoginRequest{Credential: "+233501234567"})
	require.NoError(t, err)
	assert.Equal(t, key, session.VoterKey)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, domain.AccessBallot, session.Access.Mode)

	receipt, err := env.ballots.SubmitBallot(ctx, f.electionID, key, f.vote(f.candidateA))
	require.NoError(t, err)
	assert.Regexp(t, `^BL2026[0-9a-f]{12}$`, receipt.Receipt)
	assert.Equal(t, windowStart.Add(5*time.Minute), receipt.CommittedAt)

	_, err = env.ballots.SubmitBallot(ctx, f.electionID, key, f.vote(f.candidateB))
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	access, err := env.ballots.EnterResultsView(ctx, f.electionID, key)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessVoted, access.Mode)
	assert.Equal(t, 0, access.ViewCount, "re-entry while voting is open is free")
	assert.Nil(t, access.Results)

	env.clock.Set(windowStart.Add(2 * time.Hour))
	_, err = env.ballots.SubmitBallot(ctx, f.electionID, key, f.vote(f.candidateA))
	assert.ErrorIs(t, err, domain.ErrEnded)

	access, err = env.ballots.EnterResultsView(ctx, f.electionID, key)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessResults, access.Mode)
	assert.Equal(t, 1, access.ViewCount)
	assert.Equal(t, DefaultViewLimit-1, access.ViewsRemaining)
	require.NotNil(t, access.Results)
	assert.Equal(t, 1, access.Results.TotalVotes)
	require.Len(t, access.Results.Positions, 1)
	require.Len(t, access.Results.Positions[0].Winners, 1)
	assert.Equal(t, "A", access.Results.Positions[0].Winners[0].Name)

	ballot, err := env.repo.GetBallot(ctx, f.electionID, key)
	require.NoError(t, err)
	require.NotNil(t, ballot)
	assert.Equal(t, []string{f.candidateA}, ballot.Choices[f.positionID])

	e, err := env.repo.GetElection(ctx, f.electionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.VotesCast)

	env.notifier.Wait()
	assert.Contains(t, env.audit.actions(), "ballot_committed")
}

func TestBallotService_AtMostOnceUnderConcurrency(t *testing.T) {
	env := newTestEnv(t, Options{MaxTxAttempts: 50})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)
	env.clock.Set(windowStart.Add(time.Minute))

	const submitters = 16
	var (
		wg        sync.WaitGroup
		committed atomic.Int32
		duplicate atomic.Int32
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			choice := f.candidateA
			if i%2 == 1 {
				choice = f.candidateB
			}
			_, err := env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, f.vote(choice))
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, domain.ErrAlreadyVoted), errors.Is(err, domain.ErrTransactionConflict):
				duplicate.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), committed.Load())
	assert.Equal(t, int32(submitters-1), duplicate.Load())

	ballots, err := env.repo.ListBallots(ctx, f.electionID)
	require.NoError(t, err)
	assert.Len(t, ballots, 1)

	e, err := env.repo.GetElection(ctx, f.electionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.VotesCast)

	v, err := env.repo.GetVoter(ctx, f.electionID, f.voterKey)
	require.NoError(t, err)
	assert.True(t, v.HasVoted)
}

func TestBallotService_Preconditions(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)
	env.clock.Set(windowStart.Add(time.Minute))

	_, err := env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, f.vote(f.candidateA))
	assert.ErrorIs(t, err, domain.ErrNotActive, "draft elections take no ballots")

	_, err = env.elections.SubmitForApproval(ctx, orgAdmin, f.electionID)
	require.NoError(t, err)
	_, err = env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, f.vote(f.candidateA))
	assert.ErrorIs(t, err, domain.ErrNotActive, "pending elections take no ballots")

	_, err = env.elections.Approve(ctx, reviewer, f.electionID)
	require.NoError(t, err)

	_, err = env.ballots.SubmitBallot(ctx, f.electionID, "+233209999999", f.vote(f.candidateA))
	assert.ErrorIs(t, err, domain.ErrVoterNotFound)

	_, err = env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, map[string][]string{})
	assert.ErrorIs(t, err, domain.ErrInvalidChoices)

	v, err := env.repo.GetVoter(ctx, f.electionID, f.voterKey)
	require.NoError(t, err)
	assert.False(t, v.HasVoted, "a refused ballot leaves the voter untouched")

	_, err = env.ballots.SubmitBallot(ctx, "missing", f.voterKey, f.vote(f.candidateA))
	assert.ErrorIs(t, err, domain.ErrElectionNotFound)
}

func TestBallotService_ReplacedVoterCannotVote(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)

	successor, err := env.elections.ReplaceVoter(ctx, orgAdmin, f.electionID, voterPhone, &domain.ReplaceVoterRequest{Credential: "0241234567"})
	require.NoError(t, err)
	assert.Equal(t, "+233241234567", successor.Key)

	approveElection(t, env, f)
	env.clock.Set(windowStart.Add(time.Minute))

	_, err = env.ballots.Login(ctx, f.electionID, &domain.VoterLoginRequest{Credential: voterPhone})
	assert.ErrorIs(t, err, domain.ErrVoterNotFound)
	_, err = env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, f.vote(f.candidateA))
	assert.ErrorIs(t, err, domain.ErrVoterNotFound)

	_, err = env.ballots.SubmitBallot(ctx, f.electionID, successor.Key, f.vote(f.candidateA))
	assert.NoError(t, err)
}

func TestBallotService_VotedVoterCannotBeReplacedOrRemoved(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)
	env.clock.Set(windowStart.Add(time.Minute))

	_, err := env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, f.vote(f.candidateA))
	require.NoError(t, err)

	_, err = env.elections.Reconsider(ctx, superAdmin, f.electionID)
	require.NoError(t, err)
	_, err = env.elections.Reject(ctx, reviewer, f.electionID, "Needs another position")
	require.NoError(t, err)

	assert.ErrorIs(t, env.elections.RemoveVoter(ctx, orgAdmin, f.electionID, f.voterKey), domain.ErrVoterHasVoted)
	_, err = env.elections.ReplaceVoter(ctx, orgAdmin, f.electionID, f.voterKey, &domain.ReplaceVoterRequest{Credential: "x@example.com"})
	assert.ErrorIs(t, err, domain.ErrVoterHasVoted)
}

func TestBallotService_SecondaryRequiredForNationalID(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	e, err := env.elections.CreateElection(ctx, orgAdmin, &domain.CreateElectionRequest{
		OrganizationID:   "org-1",
		Name:             "Assembly",
		CountingMode:     domain.CountingReferendum,
		CredentialScheme: credential.SchemeNationalID,
	})
	require.NoError(t, err)
	_, err = env.elections.AddPosition(ctx, orgAdmin, e.ID, &domain.PositionRequest{Name: "Adopt?"})
	require.NoError(t, err)
	v, err := env.elections.RegisterVoter(ctx, orgAdmin, e.ID, &domain.RegisterVoterRequest{Credential: "GHA-123456789-0", Secondary: "0501234567"})
	require.NoError(t, err)
	assert.Equal(t, "+233501234567", v.Secondary)
	start, end := windowStart, windowStart.Add(time.Hour)
	_, err = env.elections.SetSchedule(ctx, orgAdmin, e.ID, &domain.ScheduleRequest{Start: &start, End: &end})
	require.NoError(t, err)
	_, err = env.elections.SubmitForApproval(ctx, orgAdmin, e.ID)
	require.NoError(t, err)
	_, err = env.elections.Approve(ctx, reviewer, e.ID)
	require.NoError(t, err)
	env.clock.Set(windowStart.Add(time.Minute))

	_, err = env.ballots.Login(ctx, e.ID, &domain.VoterLoginRequest{Credential: "gha-123456789-0"})
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)

	_, err = env.ballots.Login(ctx, e.ID, &domain.VoterLoginRequest{Credential: "gha-123456789-0", Secondary: "0209999999"})
	assert.ErrorIs(t, err, domain.ErrSecondaryMismatch)

	session, err := env.ballots.Login(ctx, e.ID, &domain.VoterLoginRequest{Credential: "gha-123456789-0", Secondary: "+233 50 123 4567"})
	require.NoError(t, err)
	assert.Equal(t, "GHA-123456789-0", session.VoterKey)
}

func TestBallotService_ViewLimitBoundary(t *testing.T) {
	const limit = 3
	env := newTestEnv(t, Options{ViewLimit: limit})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)

	env.clock.Set(windowStart.Add(time.Minute))
	_, err := env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, f.vote(f.candidateB))
	require.NoError(t, err)

	env.clock.Set(windowStart.Add(3 * time.Hour))
	for i := 1; i <= limit; i++ {
		access, err := env.ballots.EnterResultsView(ctx, f.electionID, f.voterKey)
		require.NoError(t, err, "view %d", i)
		assert.Equal(t, i, access.ViewCount)
		assert.Equal(t, limit-i, access.ViewsRemaining)
	}

	_, err = env.ballots.EnterResultsView(ctx, f.electionID, f.voterKey)
	assert.ErrorIs(t, err, domain.ErrViewLimitExceeded)

	_, err = env.ballots.Login(ctx, f.electionID, &domain.VoterLoginRequest{Credential: voterPhone})
	assert.ErrorIs(t, err, domain.ErrViewLimitExceeded)

	v, err := env.repo.GetVoter(ctx, f.electionID, f.voterKey)
	require.NoError(t, err)
	assert.Equal(t, limit, v.PostVoteViewCount, "refused views are not counted")
}

func TestBallotService_ConcurrentViewsRespectLimit(t *testing.T) {
	const limit = 4
	env := newTestEnv(t, Options{ViewLimit: limit, MaxTxAttempts: 50})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)

	env.clock.Set(windowStart.Add(time.Minute))
	_, err := env.ballots.SubmitBallot(ctx, f.electionID, f.voterKey, f.vote(f.candidateA))
	require.NoError(t, err)
	env.clock.Set(windowStart.Add(3 * time.Hour))

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.ballots.EnterResultsView(ctx, f.electionID, f.voterKey); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, granted.Load(), int32(limit))
	v, err := env.repo.GetVoter(ctx, f.electionID, f.voterKey)
	require.NoError(t, err)
	assert.Equal(t, int(granted.Load()), v.PostVoteViewCount)
}

func TestBallotService_EnterResultsView_NonVoters(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)

	_, err := env.ballots.EnterResultsView(ctx, f.electionID, f.voterKey)
	assert.ErrorIs(t, err, domain.ErrNotYetStarted)

	env.clock.Set(windowStart.Add(time.Minute))
	access, err := env.ballots.EnterResultsView(ctx, f.electionID, f.voterKey)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessBallot, access.Mode)

	env.clock.Set(windowStart.Add(2 * time.Hour))
	_, err = env.ballots.EnterResultsView(ctx, f.electionID, f.voterKey)
	assert.ErrorIs(t, err, domain.ErrEnded)
}

func TestValidateChoices(t *testing.T) {
	e := &domain.Election{Positions: []domain.Position{
		{ID: "pres", Name: "President", SingleChoice: true, MaxSelections: 1, Candidates: []domain.Candidate{{ID: "a"}, {ID: "b"}}},
		{ID: "board", Name: "Board", MaxSelections: 2, Candidates: []domain.Candidate{{ID: "x"}, {ID: "y"}, {ID: "z"}}},
	}}

	tests := []struct {
		name    string
		choices map[string][]string
		wantErr bool
	}{
		{"valid", map[string][]string{"pres": {"a"}, "board": {"x", "z"}}, false},
		{"missing position", map[string][]string{"pres": {"a"}}, true},
		{"empty selection", map[string][]string{"pres": {"a"}, "board": {}}, true},
		{"unknown position", map[string][]string{"pres": {"a"}, "board": {"x"}, "vp": {"a"}}, true},
		{"candidate of another position", map[string][]string{"pres": {"x"}, "board": {"y"}}, true},
		{"two picks for single choice", map[string][]string{"pres": {"a", "b"}, "board": {"x"}}, true},
		{"over max selections", map[string][]string{"pres": {"a"}, "board": {"x", "y", "z"}}, true},
		{"duplicate candidate", map[string][]string{"pres": {"a"}, "board": {"x", "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := validateChoices(e, tt.choices)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidChoices)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.choices, selected)
		})
	}
}

func TestVotingOpen(t *testing.T) {
	start, end := windowStart, windowStart.Add(time.Hour)
	approved := func(status domain.ElectionStatus) *domain.Election {
		return &domain.Election{
			Workflow: domain.WorkflowApproved,
			Status:   status,
			Schedule: domain.Schedule{Start: &start, End: &end},
		}
	}

	tests := []struct {
		name string
		e    *domain.Election
		now  time.Time
		want error
	}{
		{"active", approved(domain.StatusActive), start.Add(time.Minute), nil},
		{"legacy locked counts as approved", &domain.Election{Workflow: domain.WorkflowLocked, Schedule: domain.Schedule{Start: &start, End: &end}}, start, nil},
		{"not yet started", approved(domain.StatusScheduled), start.Add(-time.Second), domain.ErrNotYetStarted},
		{"ended at the end instant", approved(domain.StatusActive), end, domain.ErrEnded},
		{"declared", approved(domain.StatusDeclared), start.Add(time.Minute), domain.ErrNotActive},
		{"unscheduled", &domain.Election{Workflow: domain.WorkflowApproved}, start, domain.ErrNotActive},
		{"pending", &domain.Election{Workflow: domain.WorkflowPending, Schedule: domain.Schedule{Start: &start, End: &end}}, start, domain.ErrNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := votingOpen(tt.e, tt.now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
