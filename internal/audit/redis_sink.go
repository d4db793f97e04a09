package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/redis"
)

// RedisSink appends entries to a Redis stream
type RedisSink struct {
	client *redis.Client
	stream string
}

func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: client.KeyBuilder.KeyAuditStream(stream)}
}

func (s *RedisSink) Write(ctx context.Context, e domain.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	_, err = s.client.XAdd(ctx, s.stream, map[string]interface{}{
		"id":          e.ID,
		"election_id": e.ElectionID,
		"action":      e.Action,
		"actor_id":    e.ActorID,
		"actor_role":  e.ActorRole,
		"before":      e.Before,
		"after":       e.After,
		"details":     string(details),
		"at":          e.At.Format(time.RFC3339Nano),
	})
	return err
}

// Stream returns the fully prefixed stream key
func (s *RedisSink) Stream() string {
	return s.stream
}
