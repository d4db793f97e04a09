// Package notify hands committed state changes to whatever delivers email,
// SMS or chat messages. Delivery happens after commit and its failure never
// undoes the change.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/redis"
)

// DefaultTimeout bounds a single dispatch
const DefaultTimeout = 5 * time.Second

// Dispatcher delivers one notification
type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification) error
}

// LogDispatcher only logs notifications
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n domain.Notification) error {
	d.log.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("election_id", n.ElectionID),
		zap.String("recipient", n.Recipient),
		zap.Any("data", n.Data))
	return nil
}

// RedisDispatcher publishes notifications as JSON for an external delivery worker
type RedisDispatcher struct {
	client  *redis.Client
	channel string
}

func NewRedisDispatcher(client *redis.Client, channel string) *RedisDispatcher {
	return &RedisDispatcher{client: client, channel: client.KeyBuilder.KeyChannel(channel)}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	return d.client.Publish(ctx, d.channel, payload)
}

// Channel returns the fully prefixed pub/sub channel
func (d *RedisDispatcher) Channel() string {
	return d.channel
}

// Async runs dispatches in the background
type Async struct {
	next    Dispatcher
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewAsync(next Dispatcher, log *zap.Logger) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	return &Async{next: next, log: log, timeout: DefaultTimeout, now: time.Now}
}

// Send dispatches n without blocking the caller
func (a *Async) Send(n domain.Notification) {
	if a == nil || a.next == nil {
		return
	}
	if n.At.IsZero() {
		n.At = a.now().UTC()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.next.Dispatch(ctx, n); err != nil {
			a.log.Warn("notification dispatch failed",
				zap.String("kind", string(n.Kind)),
				zap.String("election_id", n.ElectionID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every pending dispatch has finished
func (a *Async) Wait() {
	if a != nil {
		a.wg.Wait()
	}
}
