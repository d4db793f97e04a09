package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ballot-engine/internal/audit"
	"ballot-engine/internal/credential"
	"ballot-engine/internal/domain"
	"ballot-engine/internal/notify"
	"ballot-engine/internal/phase"
	"ballot-engine/internal/repository"
)

type ballotService struct {
	repo      repository.ElectionRepository
	tx        txRunner
	resolver  *credential.Resolver
	auth      AuthService
	audit     *audit.Recorder
	notifier  *notify.Async
	results   *ResultsCache
	logger    *zap.Logger
	viewLimit int
	now       func() time.Time
}

// NewBallotService creates the voter-facing ballot service
func NewBallotService(
	repo repository.ElectionRepository,
	resolver *credential.Resolver,
	auth AuthService,
	recorder *audit.Recorder,
	notifier *notify.Async,
	results *ResultsCache,
	logger *zap.Logger,
	opts Options,
) BallotService {
	return &ballotService{
		repo:      repo,
		tx:        newTxRunner(repo, opts.MaxTxAttempts, logger),
		resolver:  resolver,
		auth:      auth,
		audit:     recorder,
		notifier:  notifier,
		results:   results,
		logger:    logger,
		viewLimit: opts.viewLimit(),
		now:       opts.clock(),
	}
}

// ResolveCredential returns the canonical voter key for raw under scheme
func (s *ballotService) ResolveCredential(scheme, raw string) (string, error) {
	sc := credential.Scheme(scheme)
	if !sc.Valid() {
		return "", credential.ErrUnknownScheme
	}
	return s.resolver.Resolve(sc, raw)
}

// Login resolves the voter behind a raw credential and opens a session. The
// returned access is a preview; no results view is consumed.
func (s *ballotService) Login(ctx context.Context, electionID string, req *domain.VoterLoginRequest) (*domain.VoterSession, error) {
	e, err := s.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}

	key, err := s.resolver.Resolve(e.CredentialScheme, req.Credential)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.GetVoter(ctx, electionID, key)
	if err != nil {
		return nil, err
	}
	if v.IsReplaced {
		return nil, fmt.Errorf("%w: voter was replaced", domain.ErrVoterNotFound)
	}

	if e.CredentialScheme.SecondaryRequiredAtLogin() {
		secondary, err := s.resolver.ResolveSecondary(e.CredentialScheme, req.Secondary)
		if err != nil {
			return nil, err
		}
		if v.Secondary == "" || subtle.ConstantTimeCompare([]byte(v.Secondary), []byte(secondary)) != 1 {
			return nil, domain.ErrSecondaryMismatch
		}
	}

	access, err := decideAccess(e, v, s.now(), s.viewLimit)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.auth.IssueVoterToken(electionID, key)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Voter logged in",
		zap.String("election_id", electionID),
		zap.String("mode", string(access.Mode)))

	return &domain.VoterSession{
		Token:     token,
		VoterKey:  key,
		ExpiresAt: expiresAt,
		Access:    access,
	}, nil
}

// SubmitBallot commits one ballot for voterKey. The ballot is created only if
// none exists under the key, in the same transaction that marks the voter.
func (s *ballotService) SubmitBallot(ctx context.Context, electionID, voterKey string, choices map[string][]string) (*domain.BallotReceipt, error) {
	now := s.now().UTC()

	var ballot *domain.Ballot
	err := s.tx.run(ctx, "submit_ballot", func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.ReadElection(ctx, electionID)
		if err != nil {
			return err
		}
		if err := votingOpen(e, now); err != nil {
			return err
		}

		v, err := tx.Voter(ctx, electionID, voterKey)
		if err != nil {
			return err
		}
		if v.IsReplaced {
			return fmt.Errorf("%w: voter was replaced", domain.ErrVoterNotFound)
		}
		if v.HasVoted {
			return domain.ErrAlreadyVoted
		}

		selected, err := validateChoices(e, choices)
		if err != nil {
			return err
		}

		b := &domain.Ballot{
			ElectionID:  electionID,
			VoterKey:    voterKey,
			Choices:     selected,
			Receipt:     generateReceipt(now),
			CommittedAt: now,
		}
		if err := tx.CreateBallot(ctx, b); err != nil {
			return err
		}

		v.HasVoted = true
		v.VotedAt = &now
		v.UpdatedAt = now
		if err := tx.SaveVoter(ctx, v); err != nil {
			return err
		}
		ballot = b
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyVoted) {
			s.logger.Info("Duplicate ballot refused", zap.String("election_id", electionID))
		}
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEntry{
		ElectionID: electionID,
		Action:     "ballot_committed",
		ActorRole:  "voter",
		Details:    map[string]string{"receipt": ballot.Receipt},
		At:         now,
	})
	s.notifier.Send(domain.Notification{
		Kind:       domain.NotifyBallotCommitted,
		ElectionID: electionID,
		Data:       map[string]string{"receipt": ballot.Receipt},
		At:         now,
	})
	s.results.Invalidate(ctx, electionID)

	s.logger.Info("Ballot committed",
		zap.String("election_id", electionID),
		zap.String("receipt", ballot.Receipt))

	return &domain.BallotReceipt{
		ElectionID:  electionID,
		Receipt:     ballot.Receipt,
		CommittedAt: ballot.CommittedAt,
		Message:     "Ballot submitted successfully",
	}, nil
}

// votingOpen checks, in order, that e is approved and inside its voting window
func votingOpen(e *domain.Election, now time.Time) error {
	if !e.IsApproved() || e.Status == domain.StatusDeclared {
		return domain.ErrNotActive
	}
	switch phase.Of(now, e.Schedule) {
	case phase.Active:
		return nil
	case phase.Scheduled:
		return domain.ErrNotYetStarted
	case phase.Ended:
		return domain.ErrEnded
	}
	return domain.ErrNotActive
}

// validateChoices requires a non-empty selection for every position, only
// candidates of that position, no duplicates and the position's selection
// limits. It returns the selections of known positions only.
func validateChoices(e *domain.Election, choices map[string][]string) (map[string][]string, error) {
	for positionID := range choices {
		if _, ok := e.Position(positionID); !ok {
			return nil, fmt.Errorf("%w: unknown position %s", domain.ErrInvalidChoices, positionID)
		}
	}

	selected := make(map[string][]string, len(e.Positions))
	for _, p := range e.Positions {
		picks := choices[p.ID]
		if len(picks) == 0 {
			return nil, fmt.Errorf("%w: no selection for %q", domain.ErrInvalidChoices, p.Name)
		}
		if p.SingleChoice && len(picks) != 1 {
			return nil, fmt.Errorf("%w: %q takes exactly one selection", domain.ErrInvalidChoices, p.Name)
		}
		if p.MaxSelections > 0 && len(picks) > p.MaxSelections {
			return nil, fmt.Errorf("%w: %q takes at most %d selections", domain.ErrInvalidChoices, p.Name, p.MaxSelections)
		}
		seen := make(map[string]struct{}, len(picks))
		for _, candidateID := range picks {
			if !p.HasCandidate(candidateID) {
				return nil, fmt.Errorf("%w: unknown candidate %s for %q", domain.ErrInvalidChoices, candidateID, p.Name)
			}
			if _, dup := seen[candidateID]; dup {
				return nil, fmt.Errorf("%w: duplicate candidate %s for %q", domain.ErrInvalidChoices, candidateID, p.Name)
			}
			seen[candidateID] = struct{}{}
		}
		selected[p.ID] = append([]string(nil), picks...)
	}
	return selected, nil
}

// generateReceipt generates a ballot receipt a voter can quote
func generateReceipt(now time.Time) string {
	bytes := make([]byte, 6)
	rand.Read(bytes)
	return fmt.Sprintf("BL%d%s", now.Year(), hex.EncodeToString(bytes))
}

// EnterResultsView decides what a returning voter may see. Once voting has
// ended each entry consumes one of the voter's limited results views.
func (s *ballotService) EnterResultsView(ctx context.Context, electionID, voterKey string) (*domain.ResultsAccess, error) {
	now := s.now().UTC()

	var access *domain.ResultsAccess
	err := s.tx.run(ctx, "enter_results_view", func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.ReadElection(ctx, electionID)
		if err != nil {
			return err
		}
		v, err := tx.Voter(ctx, electionID, voterKey)
		if err != nil {
			return err
		}
		if v.IsReplaced {
			return fmt.Errorf("%w: voter was replaced", domain.ErrVoterNotFound)
		}

		a, err := decideAccess(e, v, now, s.viewLimit)
		if err != nil {
			return err
		}
		if a.Mode == domain.AccessResults {
			v.PostVoteViewCount++
			v.UpdatedAt = now
			if err := tx.SaveVoter(ctx, v); err != nil {
				return err
			}
			a.ViewCount = v.PostVoteViewCount
			a.ViewsRemaining = s.viewLimit - v.PostVoteViewCount
		}
		access = a
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrViewLimitExceeded) {
			s.logger.Info("Results view refused", zap.String("election_id", electionID))
		}
		return nil, err
	}
	if access.Mode != domain.AccessResults {
		return access, nil
	}

	// The view is already counted; the election is re-read for its counters
	e, err := s.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	results, err := loadResults(ctx, s.repo, s.results, e, now)
	if err != nil {
		s.logger.Error("Failed to load results for view",
			zap.String("election_id", electionID),
			zap.Error(err))
		return nil, err
	}
	access.Results = results
	return access, nil
}

// decideAccess works out what v may see of e at now without changing anything
func decideAccess(e *domain.Election, v *domain.Voter, now time.Time, limit int) (*domain.ResultsAccess, error) {
	if !e.IsApproved() {
		return nil, domain.ErrNotActive
	}
	p := phase.Of(now, e.Schedule)
	access := &domain.ResultsAccess{
		ElectionID:     e.ID,
		Phase:          string(p),
		ViewCount:      v.PostVoteViewCount,
		ViewsRemaining: max(limit-v.PostVoteViewCount, 0),
	}

	switch p {
	case phase.Active:
		access.Mode = domain.AccessBallot
		if v.HasVoted {
			access.Mode = domain.AccessVoted
		}
		return access, nil
	case phase.Ended:
		if !v.HasVoted {
			return nil, domain.ErrEnded
		}
		if v.PostVoteViewCount >= limit {
			return nil, domain.ErrViewLimitExceeded
		}
		access.Mode = domain.AccessResults
		return access, nil
	case phase.Scheduled:
		return nil, domain.ErrNotYetStarted
	}
	return nil, domain.ErrNotActive
}
