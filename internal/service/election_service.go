package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ballot-engine/internal/audit"
	"ballot-engine/internal/credential"
	"ballot-engine/internal/domain"
	"ballot-engine/internal/notify"
	"ballot-engine/internal/phase"
	"ballot-engine/internal/repository"
	"ballot-engine/internal/workflow"
	"ballot-engine/pkg/logger"
)

// DefaultViewLimit is how often a voter may open results after voting ended
const DefaultViewLimit = 10

// Options tunes the election and ballot services
type Options struct {
	// MaxTxAttempts bounds retries of a conflicting transaction
	MaxTxAttempts int
	// AutoSubmitOnCreate puts new elections straight into review
	AutoSubmitOnCreate bool
	// ViewLimit caps post-result views per voter
	ViewLimit int
	// Clock overrides time.Now in tests
	Clock func() time.Time
}

func (o Options) clock() func() time.Time {
	if o.Clock != nil {
		return o.Clock
	}
	return time.Now
}

func (o Options) viewLimit() int {
	if o.ViewLimit > 0 {
		return o.ViewLimit
	}
	return DefaultViewLimit
}

type electionService struct {
	repo       repository.ElectionRepository
	tx         txRunner
	resolver   *credential.Resolver
	audit      *audit.Recorder
	notifier   *notify.Async
	results    *ResultsCache
	logger     *logger.Logger
	autoSubmit bool
	now        func() time.Time
}

// NewElectionService creates an election setup and workflow service
func NewElectionService(
	repo repository.ElectionRepository,
	resolver *credential.Resolver,
	recorder *audit.Recorder,
	notifier *notify.Async,
	results *ResultsCache,
	log *logger.Logger,
	opts Options,
) ElectionService {
	return &electionService{
		repo:       repo,
		tx:         newTxRunner(repo, opts.MaxTxAttempts, log.Logger),
		resolver:   resolver,
		audit:      recorder,
		notifier:   notifier,
		results:    results,
		logger:     log,
		autoSubmit: opts.AutoSubmitOnCreate,
		now:        opts.clock(),
	}
}

func authorize(actor domain.Actor, e *domain.Election, c domain.Capability) error {
	if !actor.Can(c) || !actor.ScopedTo(e.OrganizationID) {
		return domain.ErrForbidden
	}
	return nil
}

// CreateElection creates the single election of an organization
func (s *electionService) CreateElection(ctx context.Context, actor domain.Actor, req *domain.CreateElectionRequest) (*domain.Election, error) {
	if !actor.Can(domain.CapManageSetup) || !actor.ScopedTo(req.OrganizationID) {
		return nil, domain.ErrForbidden
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: election name is required", domain.ErrInvalidInput)
	}
	if !req.CountingMode.Valid() {
		return nil, fmt.Errorf("%w: unknown counting mode %q", domain.ErrInvalidInput, req.CountingMode)
	}
	if !req.CredentialScheme.Valid() {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, credential.ErrUnknownScheme)
	}

	now := s.now().UTC()
	e := &domain.Election{
		ID:               uuid.NewString(),
		OrganizationID:   req.OrganizationID,
		Name:             name,
		CountingMode:     req.CountingMode,
		CredentialScheme: req.CredentialScheme,
		Workflow:         domain.WorkflowDraft,
		Status:           domain.StatusDraft,
		Approval:         domain.ApprovalRecord{History: []domain.Transition{}},
		Positions:        []domain.Position{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Schedule != nil {
		schedule, err := normalizeSchedule(req.Schedule.Start, req.Schedule.End)
		if err != nil {
			return nil, err
		}
		e.Schedule = schedule
	}

	var submitted *domain.Transition
	if s.autoSubmit {
		tr := workflow.AutoSubmit(e, actor, now)
		submitted = &tr
	}

	if err := s.tx.run(ctx, "create_election", func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateElection(ctx, e)
	}); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEntry{
		ElectionID: e.ID,
		Action:     "create",
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		After:      string(domain.WorkflowDraft),
		Details: map[string]string{
			"organization_id": e.OrganizationID,
			"name":            e.Name,
		},
	})
	if submitted != nil {
		s.afterTransition(ctx, e, *submitted, domain.NotifySubmitted)
	}

	s.logger.Info("Election created",
		zap.String("election_id", e.ID),
		zap.String("organization_id", e.OrganizationID),
		zap.String("workflow_status", string(e.Workflow)))
	return e, nil
}

// GetElection returns the election with its phase-derived status as of now
func (s *electionService) GetElection(ctx context.Context, actor domain.Actor, electionID string) (*domain.Election, error) {
	e, err := s.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !actor.ScopedTo(e.OrganizationID) {
		return nil, domain.ErrForbidden
	}
	if status, changed := phase.Derive(s.now(), e); changed {
		e.Status = status
	}
	return e, nil
}

// DeleteElection removes an unlocked election with its voters and ballots
func (s *electionService) DeleteElection(ctx context.Context, actor domain.Actor, electionID string) error {
	err := s.tx.run(ctx, "delete_election", func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.Election(ctx, electionID)
		if err != nil {
			return err
		}
		if err := authorize(actor, e, domain.CapManageSetup); err != nil {
			return err
		}
		if err := workflow.CheckEditAllowed(e); err != nil {
			return err
		}
		return tx.DeleteElection(ctx, e)
	})
	if err != nil {
		return err
	}

	if err := s.repo.PurgeElectionData(ctx, electionID); err != nil {
		// The election is gone; orphaned voters are unreachable and a rerun can purge them
		s.logger.Error("Failed to purge election data",
			zap.String("election_id", electionID),
			zap.Error(err))
	}
	s.results.Invalidate(ctx, electionID)
	s.audit.Record(ctx, domain.AuditEntry{
		ElectionID: electionID,
		Action:     "delete",
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
	})
	return nil
}

// CheckEditAllowed reports whether setup may currently change, and why not
func (s *electionService) CheckEditAllowed(ctx context.Context, electionID string) (*domain.EditStatus, error) {
	e, err := s.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	locked, reason := workflow.IsLocked(e.Workflow)
	return &domain.EditStatus{
		ElectionID: e.ID,
		Allowed:    !locked,
		Reason:     reason,
		Workflow:   e.Workflow,
	}, nil
}

// editSetup runs fn against a freshly read election once the actor and the
// edit lock allow it. The election document is only written when save is set;
// voter changes read it shared so concurrent registrations do not collide.
func (s *electionService) editSetup(
	ctx context.Context,
	actor domain.Actor,
	electionID, op string,
	save bool,
	fn func(ctx context.Context, tx repository.Tx, e *domain.Election) error,
) (*domain.Election, error) {
	var out *domain.Election
	err := s.tx.run(ctx, op, func(ctx context.Context, tx repository.Tx) error {
		var (
			e   *domain.Election
			err error
		)
		if save {
			e, err = tx.Election(ctx, electionID)
		} else {
			e, err = tx.ReadElection(ctx, electionID)
		}
		if err != nil {
			return err
		}
		if err := authorize(actor, e, domain.CapManageSetup); err != nil {
			return err
		}
		if err := workflow.CheckEditAllowed(e); err != nil {
			return err
		}
		if err := fn(ctx, tx, e); err != nil {
			return err
		}
		out = e
		if !save {
			return nil
		}
		e.UpdatedAt = s.now().UTC()
		return tx.SaveElection(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, domain.AuditEntry{
		ElectionID: electionID,
		Action:     op,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
	})
	return out, nil
}

// SetSchedule sets the voting window
func (s *electionService) SetSchedule(ctx context.Context, actor domain.Actor, electionID string, req *domain.ScheduleRequest) (*domain.Election, error) {
	schedule, err := normalizeSchedule(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	return s.editSetup(ctx, actor, electionID, "set_schedule", true, func(_ context.Context, _ repository.Tx, e *domain.Election) error {
		e.Schedule = schedule
		return nil
	})
}

func normalizeSchedule(start, end *time.Time) (domain.Schedule, error) {
	var schedule domain.Schedule
	if start != nil {
		t := start.UTC()
		schedule.Start = &t
	}
	if end != nil {
		t := end.UTC()
		schedule.End = &t
	}
	if schedule.IsConfigured() && !schedule.End.After(*schedule.Start) {
		return domain.Schedule{}, fmt.Errorf("%w: schedule end must be after start", domain.ErrInvalidInput)
	}
	return schedule, nil
}

// AddPosition adds a position. Referendum positions come with Yes and No.
func (s *electionService) AddPosition(ctx context.Context, actor domain.Actor, electionID string, req *domain.PositionRequest) (*domain.Position, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: position name is required", domain.ErrInvalidInput)
	}

	var added domain.Position
	_, err := s.editSetup(ctx, actor, electionID, "add_position", true, func(_ context.Context, _ repository.Tx, e *domain.Election) error {
		p := domain.Position{ID: uuid.NewString(), Name: name, Candidates: []domain.Candidate{}}
		applyPositionRules(e.CountingMode, &p, req)
		if e.CountingMode == domain.CountingReferendum {
			p.Candidates = []domain.Candidate{
				{ID: uuid.NewString(), Name: "Yes"},
				{ID: uuid.NewString(), Name: "No"},
			}
		}
		e.Positions = append(e.Positions, p)
		added = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// UpdatePosition renames a position or changes its selection rules
func (s *electionService) UpdatePosition(ctx context.Context, actor domain.Actor, electionID, positionID string, req *domain.PositionRequest) (*domain.Position, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: position name is required", domain.ErrInvalidInput)
	}

	var updated domain.Position
	_, err := s.editSetup(ctx, actor, electionID, "update_position", true, func(_ context.Context, _ repository.Tx, e *domain.Election) error {
		p, ok := e.Position(positionID)
		if !ok {
			return domain.ErrPositionNotFound
		}
		p.Name = name
		applyPositionRules(e.CountingMode, p, req)
		updated = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// applyPositionRules sets the selection rules of p. Positions are single
// choice unless the election elects several winners or the request says otherwise.
func applyPositionRules(mode domain.CountingMode, p *domain.Position, req *domain.PositionRequest) {
	if mode == domain.CountingReferendum {
		p.SingleChoice = true
		p.MaxSelections = 1
		return
	}
	p.SingleChoice = mode != domain.CountingMultipleWinner
	if req.SingleChoice != nil {
		p.SingleChoice = *req.SingleChoice
	}
	if p.SingleChoice {
		p.MaxSelections = 1
		return
	}
	p.MaxSelections = req.MaxSelections
}

// RemovePosition deletes a position and its candidates
func (s *electionService) RemovePosition(ctx context.Context, actor domain.Actor, electionID, positionID string) error {
	_, err := s.editSetup(ctx, actor, electionID, "remove_position", true, func(_ context.Context, _ repository.Tx, e *domain.Election) error {
		for i, p := range e.Positions {
			if p.ID == positionID {
				e.Positions = append(e.Positions[:i], e.Positions[i+1:]...)
				return nil
			}
		}
		return domain.ErrPositionNotFound
	})
	return err
}

// AddCandidate adds a candidate to a position
func (s *electionService) AddCandidate(ctx context.Context, actor domain.Actor, electionID, positionID string, req *domain.CandidateRequest) (*domain.Candidate, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: candidate name is required", domain.ErrInvalidInput)
	}

	var added domain.Candidate
	_, err := s.editSetup(ctx, actor, electionID, "add_candidate", true, func(_ context.Context, _ repository.Tx, e *domain.Election) error {
		p, ok := e.Position(positionID)
		if !ok {
			return domain.ErrPositionNotFound
		}
		added = domain.Candidate{ID: uuid.NewString(), Name: name}
		p.Candidates = append(p.Candidates, added)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// RemoveCandidate removes a candidate from a position
func (s *electionService) RemoveCandidate(ctx context.Context, actor domain.Actor, electionID, positionID, candidateID string) error {
	_, err := s.editSetup(ctx, actor, electionID, "remove_candidate", true, func(_ context.Context, _ repository.Tx, e *domain.Election) error {
		p, ok := e.Position(positionID)
		if !ok {
			return domain.ErrPositionNotFound
		}
		for i, c := range p.Candidates {
			if c.ID == candidateID {
				p.Candidates = append(p.Candidates[:i], p.Candidates[i+1:]...)
				return nil
			}
		}
		return domain.ErrCandidateNotFound
	})
	return err
}

// RegisterVoter registers a voter under the election's credential scheme.
// An invalid secondary credential is dropped with a warning.
func (s *electionService) RegisterVoter(ctx context.Context, actor domain.Actor, electionID string, req *domain.RegisterVoterRequest) (*domain.Voter, error) {
	var registered *domain.Voter
	_, err := s.editSetup(ctx, actor, electionID, "register_voter", false, func(ctx context.Context, tx repository.Tx, e *domain.Election) error {
		v, err := s.newVoter(e, req.Credential, req.Secondary, req.Name)
		if err != nil {
			return err
		}
		if err := tx.CreateVoter(ctx, v); err != nil {
			return err
		}
		registered = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

func (s *electionService) newVoter(e *domain.Election, primary, secondary, name string) (*domain.Voter, error) {
	key, err := s.resolver.Resolve(e.CredentialScheme, primary)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &domain.Voter{
		ElectionID: e.ID,
		Key:        key,
		Name:       strings.TrimSpace(name),
		Secondary:  s.secondaryOrDrop(e, key, secondary),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *electionService) secondaryOrDrop(e *domain.Election, key, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	secondary, err := s.resolver.ResolveSecondary(e.CredentialScheme, raw)
	if err != nil {
		s.logger.Warn("Dropping invalid secondary credential",
			zap.String("election_id", e.ID),
			zap.String("scheme", string(e.CredentialScheme)),
			zap.Int("key_length", len(key)),
			zap.Error(err))
		return ""
	}
	return secondary
}

// UpdateVoter changes a voter's name or secondary credential
func (s *electionService) UpdateVoter(ctx context.Context, actor domain.Actor, electionID, voterKey string, req *domain.UpdateVoterRequest) (*domain.Voter, error) {
	var updated *domain.Voter
	_, err := s.editSetup(ctx, actor, electionID, "update_voter", false, func(ctx context.Context, tx repository.Tx, e *domain.Election) error {
		v, err := s.lookupVoter(ctx, tx, e, voterKey)
		if err != nil {
			return err
		}
		if req.Name != nil {
			v.Name = strings.TrimSpace(*req.Name)
		}
		if req.Secondary != nil {
			v.Secondary = s.secondaryOrDrop(e, v.Key, *req.Secondary)
		}
		v.UpdatedAt = s.now().UTC()
		if err := tx.SaveVoter(ctx, v); err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReplaceVoter supersedes a voter who has not voted with a new credential
func (s *electionService) ReplaceVoter(ctx context.Context, actor domain.Actor, electionID, voterKey string, req *domain.ReplaceVoterRequest) (*domain.Voter, error) {
	var successor *domain.Voter
	_, err := s.editSetup(ctx, actor, electionID, "replace_voter", false, func(ctx context.Context, tx repository.Tx, e *domain.Election) error {
		old, err := s.lookupVoter(ctx, tx, e, voterKey)
		if err != nil {
			return err
		}
		if old.HasVoted {
			return domain.ErrVoterHasVoted
		}
		next, err := s.newVoter(e, req.Credential, req.Secondary, req.Name)
		if err != nil {
			return err
		}
		if next.Key == old.Key {
			return fmt.Errorf("%w: replacement credential matches the current one", domain.ErrInvalidInput)
		}
		now := s.now().UTC()
		old.IsReplaced = true
		old.ReplacedBy = next.Key
		old.ReplacedAt = &now
		old.UpdatedAt = now
		if err := tx.ReplaceVoter(ctx, old, next); err != nil {
			return err
		}
		successor = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return successor, nil
}

// RemoveVoter deletes a voter who has not voted
func (s *electionService) RemoveVoter(ctx context.Context, actor domain.Actor, electionID, voterKey string) error {
	_, err := s.editSetup(ctx, actor, electionID, "remove_voter", false, func(ctx context.Context, tx repository.Tx, e *domain.Election) error {
		v, err := s.lookupVoter(ctx, tx, e, voterKey)
		if err != nil {
			return err
		}
		if v.HasVoted {
			return domain.ErrVoterHasVoted
		}
		return tx.DeleteVoter(ctx, v)
	})
	return err
}

// lookupVoter accepts either a canonical key or a raw credential
func (s *electionService) lookupVoter(ctx context.Context, tx repository.Tx, e *domain.Election, voterKey string) (*domain.Voter, error) {
	key, err := s.resolver.Resolve(e.CredentialScheme, voterKey)
	if err != nil {
		return nil, domain.ErrVoterNotFound
	}
	v, err := tx.Voter(ctx, e.ID, key)
	if err != nil {
		return nil, err
	}
	if v.IsReplaced {
		return nil, fmt.Errorf("%w: voter was replaced", domain.ErrVoterNotFound)
	}
	return v, nil
}

// ListVoters lists an election's voters, optionally including replaced ones
func (s *electionService) ListVoters(ctx context.Context, actor domain.Actor, electionID string, includeReplaced bool) ([]*domain.Voter, error) {
	e, err := s.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !actor.ScopedTo(e.OrganizationID) {
		return nil, domain.ErrForbidden
	}
	voters, err := s.repo.ListVoters(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if includeReplaced {
		return voters, nil
	}
	active := make([]*domain.Voter, 0, len(voters))
	for _, v := range voters {
		if v.IsActive() {
			active = append(active, v)
		}
	}
	return active, nil
}

// transition runs one workflow step inside a transaction against a freshly read
// election. ErrAlreadySubmitted from a racing submit is reported as a no-op.
func (s *electionService) transition(
	ctx context.Context,
	electionID string,
	action domain.TransitionAction,
	kind domain.NotificationKind,
	step func(ctx context.Context, tx repository.Tx, e *domain.Election) (domain.Transition, error),
) (*domain.TransitionResult, error) {
	var (
		e  *domain.Election
		tr domain.Transition
	)
	err := s.tx.run(ctx, string(action), func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.Election(ctx, electionID)
		if err != nil {
			return err
		}
		e = current
		if tr, err = step(ctx, tx, current); err != nil {
			return err
		}
		return tx.SaveElection(ctx, current)
	})
	if errors.Is(err, domain.ErrAlreadySubmitted) {
		return &domain.TransitionResult{
			ElectionID: electionID,
			Action:     action,
			From:       e.Workflow,
			To:         e.Workflow,
			Status:     e.Status,
			NoOp:       true,
			Message:    domain.ErrAlreadySubmitted.Error(),
			At:         s.now().UTC(),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, e, tr, kind)
	s.logger.Info("Election workflow transition",
		zap.String("election_id", electionID),
		zap.String("action", string(action)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("actor_id", tr.ActorID))

	return &domain.TransitionResult{
		ElectionID: electionID,
		Action:     action,
		From:       tr.From,
		To:         tr.To,
		Status:     e.Status,
		Message:    fmt.Sprintf("election %s", transitionVerb(action)),
		At:         tr.At,
	}, nil
}

// afterTransition writes the audit entry, notifies and drops cached results.
// None of it can undo the committed transition.
func (s *electionService) afterTransition(ctx context.Context, e *domain.Election, tr domain.Transition, kind domain.NotificationKind) {
	s.audit.Transition(ctx, e.ID, tr)
	data := map[string]string{
		"from":     string(tr.From),
		"to":       string(tr.To),
		"actor_id": tr.ActorID,
	}
	if tr.Reason != "" {
		data["reason"] = tr.Reason
	}
	s.notifier.Send(domain.Notification{
		Kind:       kind,
		ElectionID: e.ID,
		Recipient:  e.OrganizationID,
		Data:       data,
		At:         tr.At,
	})
	s.results.Invalidate(ctx, e.ID)
}

func transitionVerb(action domain.TransitionAction) string {
	switch action {
	case domain.ActionSubmit:
		return "submitted for approval"
	case domain.ActionApprove:
		return "approved"
	case domain.ActionReject:
		return "rejected"
	case domain.ActionRevoke:
		return "approval revoked"
	case domain.ActionReconsider:
		return "returned for reconsideration"
	case domain.ActionDeclare:
		return "results declared"
	}
	return string(action)
}

// SubmitForApproval moves a complete draft or rejected election to review
func (s *electionService) SubmitForApproval(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, electionID, domain.ActionSubmit, domain.NotifySubmitted, func(ctx context.Context, tx repository.Tx, e *domain.Election) (domain.Transition, error) {
		if err := authorize(actor, e, domain.CapSubmit); err != nil {
			return domain.Transition{}, err
		}
		if e.Workflow == domain.WorkflowPending {
			return domain.Transition{}, domain.ErrAlreadySubmitted
		}
		voters, err := tx.ActiveVoters(ctx, e.ID)
		if err != nil {
			return domain.Transition{}, err
		}
		return workflow.Submit(e, actor, voters, s.now().UTC())
	})
}

// Approve opens a pending election for voting
func (s *electionService) Approve(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, electionID, domain.ActionApprove, domain.NotifyApproved, func(_ context.Context, _ repository.Tx, e *domain.Election) (domain.Transition, error) {
		if !actor.ScopedTo(e.OrganizationID) {
			return domain.Transition{}, domain.ErrForbidden
		}
		tr, err := workflow.Approve(e, actor, s.now().UTC())
		if err != nil {
			return tr, err
		}
		if status, changed := phase.Derive(s.now(), e); changed {
			e.Status = status
		}
		return tr, nil
	})
}

// Reject returns a pending election to its organizer with a reason
func (s *electionService) Reject(ctx context.Context, actor domain.Actor, electionID, reason string) (*domain.TransitionResult, error) {
	return s.transition(ctx, electionID, domain.ActionReject, domain.NotifyRejected, func(_ context.Context, _ repository.Tx, e *domain.Election) (domain.Transition, error) {
		if !actor.ScopedTo(e.OrganizationID) {
			return domain.Transition{}, domain.ErrForbidden
		}
		return workflow.Reject(e, actor, reason, s.now().UTC())
	})
}

// Revoke sends an approved election back to review
func (s *electionService) Revoke(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, electionID, domain.ActionRevoke, domain.NotifyRevoked, func(_ context.Context, _ repository.Tx, e *domain.Election) (domain.Transition, error) {
		return workflow.Revoke(e, actor, s.now().UTC())
	})
}

// Reconsider resets a decision to pending
func (s *electionService) Reconsider(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, electionID, domain.ActionReconsider, domain.NotifyReconsidered, func(_ context.Context, _ repository.Tx, e *domain.Election) (domain.Transition, error) {
		return workflow.Reconsider(e, actor, s.now().UTC())
	})
}

// DeclareResults marks the results of an ended election as declared
func (s *electionService) DeclareResults(ctx context.Context, actor domain.Actor, electionID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, electionID, domain.ActionDeclare, domain.NotifyDeclared, func(_ context.Context, _ repository.Tx, e *domain.Election) (domain.Transition, error) {
		if !actor.ScopedTo(e.OrganizationID) {
			return domain.Transition{}, domain.ErrForbidden
		}
		now := s.now().UTC()
		return workflow.Declare(e, actor, phase.Of(now, e.Schedule) == phase.Ended, now)
	})
}

// History returns the approval history, oldest first
func (s *electionService) History(ctx context.Context, actor domain.Actor, electionID string) ([]domain.Transition, error) {
	e, err := s.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !actor.ScopedTo(e.OrganizationID) {
		return nil, domain.ErrForbidden
	}
	if e.Approval.History == nil {
		return []domain.Transition{}, nil
	}
	return e.Approval.History, nil
}

// Results returns the current tally to an administrator
func (s *electionService) Results(ctx context.Context, actor domain.Actor, electionID string) (*domain.Results, error) {
	e, err := s.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !actor.ScopedTo(e.OrganizationID) {
		return nil, domain.ErrForbidden
	}
	return loadResults(ctx, s.repo, s.results, e, s.now())
}

// loadResults tallies e through the cache. Results are cached longer once
// voting has ended since no more ballots can arrive.
func loadResults(ctx context.Context, repo repository.ElectionRepository, cache *ResultsCache, e *domain.Election, now time.Time) (*domain.Results, error) {
	frozen := phase.Of(now, e.Schedule) == phase.Ended
	return cache.Get(ctx, e.ID, frozen, func(ctx context.Context) (*domain.Results, error) {
		ballots, err := repo.ListBallots(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		return tally(e, ballots, now.UTC()), nil
	})
}
