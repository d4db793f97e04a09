package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/redis"
)

// ResultsCache keeps computed tallies in Redis with a cache-aside pattern.
// A nil Redis client disables caching; every call computes.
type ResultsCache struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewResultsCache creates a results cache
func NewResultsCache(redisClient *redis.Client, logger *zap.Logger) *ResultsCache {
	return &ResultsCache{
		redis:  redisClient,
		logger: logger,
	}
}

// Get returns cached results for electionID or computes and caches them.
// frozen selects the longer TTL used once voting has ended.
func (c *ResultsCache) Get(ctx context.Context, electionID string, frozen bool, compute func(ctx context.Context) (*domain.Results, error)) (*domain.Results, error) {
	if c == nil || c.redis == nil {
		return compute(ctx)
	}

	ttl := redis.TTLResults
	if frozen {
		ttl = redis.TTLResultsFrozen
	}

	var computed *domain.Results
	data, err := c.redis.GetWithFallback(ctx, c.redis.KeyBuilder.KeyResults(electionID), ttl, func() (string, error) {
		res, err := compute(ctx)
		if err != nil {
			return "", err
		}
		computed = res
		encoded, err := json.Marshal(res)
		if err != nil {
			return "", fmt.Errorf("failed to encode results: %w", err)
		}
		return string(encoded), nil
	})
	if err != nil {
		return nil, err
	}
	if computed != nil {
		return computed, nil
	}

	var results domain.Results
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		// Log cache corruption but continue to the store
		c.logger.Warn("Results cache corrupted, recomputing",
			zap.String("election_id", electionID),
			zap.Error(err))
		c.Invalidate(ctx, electionID)
		return compute(ctx)
	}
	c.logger.Debug("Results cache hit", zap.String("election_id", electionID))
	return &results, nil
}

// Invalidate drops cached results. Errors are logged; a stale entry expires on its own.
func (c *ResultsCache) Invalidate(ctx context.Context, electionID string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyResults(electionID)); err != nil {
		c.logger.Warn("Failed to invalidate results cache",
			zap.String("election_id", electionID),
			zap.Error(err))
	}
}
