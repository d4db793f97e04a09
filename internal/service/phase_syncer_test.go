package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/logger"
)

func TestPhaseSyncer_WritesBackOnlyChanges(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)

	changed, err := env.syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed, "approval already stored the scheduled status")

	env.clock.Set(windowStart.Add(time.Minute))
	changed, err = env.syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	e, err := env.repo.GetElection(ctx, f.electionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, e.Status)

	changed, err = env.syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	env.clock.Set(windowStart.Add(2 * time.Hour))
	changed, err = env.syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	e, err = env.repo.GetElection(ctx, f.electionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, e.Status)
}

func TestPhaseSyncer_NeverOverridesDeclared(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)

	env.clock.Set(windowStart.Add(2 * time.Hour))
	_, err := env.elections.DeclareResults(ctx, orgAdmin, f.electionID)
	require.NoError(t, err)

	for _, at := range []time.Time{windowStart.Add(3 * time.Hour), windowStart.Add(time.Minute), windowStart.Add(-time.Hour)} {
		env.clock.Set(at)
		changed, err := env.syncer.SyncOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, changed)
	}

	e, err := env.repo.GetElection(ctx, f.electionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeclared, e.Status)
}

func TestPhaseSyncer_IgnoresUnapprovedElections(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)

	env.clock.Set(windowStart.Add(time.Minute))
	changed, err := env.syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	e, err := env.repo.GetElection(ctx, f.electionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, e.Status)
}

func TestPhaseSyncer_StartStop(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	f := setupElection(t, env)
	approveElection(t, env, f)
	env.clock.Set(windowStart.Add(time.Minute))

	require.NoError(t, env.syncer.Start(ctx))
	require.NoError(t, env.syncer.Start(ctx), "starting twice is a no-op")

	assert.Eventually(t, func() bool {
		e, err := env.repo.GetElection(ctx, f.electionID)
		return err == nil && e.Status == domain.StatusActive
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, env.syncer.Stop(stopCtx))
	require.NoError(t, env.syncer.Stop(stopCtx), "stopping twice is a no-op")
}

func TestPhaseSyncer_InvalidSchedule(t *testing.T) {
	env := newTestEnv(t, Options{})
	syncer := NewPhaseSyncer(env.repo, nil, logger.NewNop(), "every now and then", Options{})
	assert.Error(t, syncer.Start(context.Background()))
}
