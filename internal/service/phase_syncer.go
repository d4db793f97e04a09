package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ballot-engine/internal/domain"
	"ballot-engine/internal/phase"
	"ballot-engine/internal/repository"
	"ballot-engine/pkg/logger"
)

// DefaultSyncSchedule is the cron spec of the phase write-back
const DefaultSyncSchedule = "@every 30s"

// phaseSyncer periodically writes phase-derived statuses back to elections.
// It writes only when the status changed and never touches declared elections.
type phaseSyncer struct {
	repo     repository.ElectionRepository
	tx       txRunner
	results  *ResultsCache
	logger   *logger.Logger
	schedule string
	now      func() time.Time

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

// NewPhaseSyncer creates the background phase syncer
func NewPhaseSyncer(repo repository.ElectionRepository, results *ResultsCache, log *logger.Logger, schedule string, opts Options) PhaseSyncer {
	if schedule == "" {
		schedule = DefaultSyncSchedule
	}
	return &phaseSyncer{
		repo:     repo,
		tx:       newTxRunner(repo, opts.MaxTxAttempts, log.Logger),
		results:  results,
		logger:   log,
		schedule: schedule,
		now:      opts.clock(),
	}
}

// Start schedules SyncOnce. A run still in progress when the next is due is skipped.
func (s *phaseSyncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Error("Phase sync failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid phase sync schedule %q: %w", s.schedule, err)
	}
	c.Start()

	s.cron = c
	s.isRunning = true
	s.logger.WithField("schedule", s.schedule).Info("Phase syncer started")
	return nil
}

// Stop stops scheduling and waits for a running sync, or for ctx to expire
func (s *phaseSyncer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.logger.Info("Stopping phase syncer...")
	done := s.cron.Stop()
	s.isRunning = false

	select {
	case <-done.Done():
		s.logger.Info("Phase syncer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncOnce writes back every changed phase-derived status and returns how many changed
func (s *phaseSyncer) SyncOnce(ctx context.Context) (int, error) {
	elections, err := s.repo.ListElections(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	var errs []error
	for _, listed := range elections {
		if _, stale := phase.Derive(s.now(), listed); !stale {
			continue
		}
		updated, err := s.syncElection(ctx, listed.ID)
		if err != nil {
			if errors.Is(err, domain.ErrElectionNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("election %s: %w", listed.ID, err))
			continue
		}
		if updated {
			changed++
		}
	}

	if changed > 0 {
		s.logger.Info("Phase sync wrote back statuses", zap.Int("changed", changed))
	}
	return changed, errors.Join(errs...)
}

// syncElection re-derives the status inside a transaction so a concurrent
// declaration or workflow change is never overwritten
func (s *phaseSyncer) syncElection(ctx context.Context, electionID string) (bool, error) {
	var (
		updated bool
		from    domain.ElectionStatus
		to      domain.ElectionStatus
	)
	err := s.tx.run(ctx, "phase_sync", func(ctx context.Context, tx repository.Tx) error {
		updated = false
		e, err := tx.Election(ctx, electionID)
		if err != nil {
			return err
		}
		status, changed := phase.Derive(s.now(), e)
		if !changed {
			return nil
		}
		from, to = e.Status, status
		e.Status = status
		e.UpdatedAt = s.now().UTC()
		if err := tx.SaveElection(ctx, e); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if err != nil || !updated {
		return false, err
	}

	s.results.Invalidate(ctx, electionID)
	s.logger.WithElection(electionID).Debug("Election status synced",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return true, nil
}
