package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"ballot-engine/internal/domain"
	"ballot-engine/internal/repository"
)

// DefaultMaxTxAttempts bounds retries of a conflicting transaction
const DefaultMaxTxAttempts = 3

// txRunner retries whole transactions that fail with a storage conflict.
// Any other error is returned on the first attempt.
type txRunner struct {
	repo        repository.ElectionRepository
	maxAttempts int
	log         *zap.Logger
}

func newTxRunner(repo repository.ElectionRepository, maxAttempts int, log *zap.Logger) txRunner {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxTxAttempts
	}
	return txRunner{repo: repo, maxAttempts: maxAttempts, log: log}
}

func (r txRunner) run(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := r.repo.RunTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrTransactionConflict) {
			r.log.Debug("transaction conflict",
				zap.String("op", op),
				zap.Int("attempt", attempt))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxAttempts-1)), ctx))
}
