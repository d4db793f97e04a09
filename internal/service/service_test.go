package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ballot-engine/internal/audit"
	"ballot-engine/internal/credential"
	"ballot-engine/internal/domain"
	"ballot-engine/internal/notify"
	"ballot-engine/internal/repository"
	"ballot-engine/internal/service/auth"
	"ballot-engine/pkg/docstore/redisstore"
	"ballot-engine/pkg/logger"
	"ballot-engine/pkg/redis"
)

var (
	orgAdmin   = domain.Actor{ID: "admin-1", Role: domain.RoleOrgAdmin, OrganizationID: "org-1"}
	otherAdmin = domain.Actor{ID: "admin-2", Role: domain.RoleOrgAdmin, OrganizationID: "org-2"}
	reviewer   = domain.Actor{ID: "reviewer-1", Role: domain.RoleReviewer}
	superAdmin = domain.Actor{ID: "root", Role: domain.RoleSuperAdmin}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type memorySink struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (s *memorySink) Write(_ context.Context, e domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memorySink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	mr        *miniredis.Miniredis
	client    *redis.Client
	repo      *repository.DocumentRepository
	clock     *fakeClock
	audit     *memorySink
	notifier  *notify.Async
	elections ElectionService
	ballots   BallotService
	syncer    PhaseSyncer
}

// windowStart is the scheduled start used throughout the tests
var windowStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: windowStart.Add(-time.Hour)}
	opts.Clock = clock.Now

	repo := repository.NewDocumentRepository(redisstore.New(client, zap.NewNop()))
	sink := &memorySink{}
	recorder := audit.NewRecorder(sink, zap.NewNop())
	notifier := notify.NewAsync(notify.NewLogDispatcher(zap.NewNop()), zap.NewNop())
	t.Cleanup(notifier.Wait)
	cache := NewResultsCache(client, zap.NewNop())
	resolver := credential.NewResolver("233")
	log := logger.NewNop()

	return &testEnv{
		mr:        mr,
		client:    client,
		repo:      repo,
		clock:     clock,
		audit:     sink,
		notifier:  notifier,
		elections: NewElectionService(repo, resolver, recorder, notifier, cache, log, opts),
		ballots:   NewBallotService(repo, resolver, auth.NewService("test-secret", log), recorder, notifier, cache, zap.NewNop(), opts),
		syncer:    NewPhaseSyncer(repo, cache, log, "@every 1s", opts),
	}
}

// fixture is a complete election ready for submission
type fixture struct {
	electionID string
	positionID string
	candidateA string
	candidateB string
	voterKey   string
}

const voterPhone = "+233 50 123 4567"

// setupElection creates an email_phone election with one President position,
// candidates A and B, voter V and the window [windowStart, windowStart+1h)
func setupElection(t *testing.T, env *testEnv) fixture {
	t.Helper()
	ctx := context.Background()

	e, err := env.elections.CreateElection(ctx, orgAdmin, &domain.CreateElectionRequest{
		OrganizationID:   "org-1",
		Name:             "Student Council",
		CountingMode:     domain.CountingSingleWinner,
		CredentialScheme: credential.SchemeEmailPhone,
	})
	require.NoError(t, err)

	p, err := env.elections.AddPosition(ctx, orgAdmin, e.ID, &domain.PositionRequest{Name: "President"})
	require.NoError(t, err)
	a, err := env.elections.AddCandidate(ctx, orgAdmin, e.ID, p.ID, &domain.CandidateRequest{Name: "A"})
	require.NoError(t, err)
	b, err := env.elections.AddCandidate(ctx, orgAdmin, e.ID, p.ID, &domain.CandidateRequest{Name: "B"})
	require.NoError(t, err)
	v, err := env.elections.RegisterVoter(ctx, orgAdmin, e.ID, &domain.RegisterVoterRequest{Credential: voterPhone, Name: "V"})
	require.NoError(t, err)

	start, end := windowStart, windowStart.Add(time.Hour)
	_, err = env.elections.SetSchedule(ctx, orgAdmin, e.ID, &domain.ScheduleRequest{Start: &start, End: &end})
	require.NoError(t, err)

	return fixture{
		electionID: e.ID,
		positionID: p.ID,
		candidateA: a.ID,
		candidateB: b.ID,
		voterKey:   v.Key,
	}
}

// approveElection submits and approves the fixture election
func approveElection(t *testing.T, env *testEnv, f fixture) {
	t.Helper()
	ctx := context.Background()
	_, err := env.elections.SubmitForApproval(ctx, orgAdmin, f.electionID)
	require.NoError(t, err)
	_, err = env.elections.Approve(ctx, reviewer, f.electionID)
	require.NoError(t, err)
}

func (f fixture) vote(candidateID string) map[string][]string {
	return map[string][]string{f.positionID: {candidateID}}
}
