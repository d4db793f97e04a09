package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/redis"
)

type captureSink struct {
	entries []domain.AuditEntry
	err     error
	block   bool
}

func (s *captureSink) Write(ctx context.Context, e domain.AuditEntry) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.entries = append(s.entries, e)
	return s.err
}

func TestRecorder_StampsEntries(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, zap.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	rec.Record(context.Background(), domain.AuditEntry{ElectionID: "el-1", Action: "approve"})

	require.Len(t, sink.entries, 1)
	assert.NotEmpty(t, sink.entries[0].ID)
	assert.Equal(t, fixed, sink.entries[0].At)
}

func TestRecorder_FailuresAreLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := NewRecorder(&captureSink{err: errors.New("disk full")}, zap.New(core))

	rec.Record(context.Background(), domain.AuditEntry{ElectionID: "el-1", Action: "submit"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "audit write failed", logs.All()[0].Message)
}

func TestRecorder_SlowSinkIsBounded(t *testing.T) {
	rec := NewRecorder(&captureSink{block: true}, zap.NewNop())
	rec.timeout = 20 * time.Millisecond

	done := make(chan struct{})
	go func() {
		rec.Record(context.Background(), domain.AuditEntry{ElectionID: "el-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow sink")
	}
}

func TestRecorder_IgnoresCallerCancellation(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, domain.AuditEntry{ElectionID: "el-1"})

	assert.Len(t, sink.entries, 1)
}

func TestRecorder_Transition(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, zap.NewNop())
	at := time.Now().UTC()

	rec.Transition(context.Background(), "el-1", domain.Transition{
		Action:    domain.ActionReject,
		From:      domain.WorkflowPending,
		To:        domain.WorkflowRejected,
		ActorID:   "rev-1",
		ActorRole: domain.RoleReviewer,
		Reason:    "missing schedule",
		At:        at,
	})

	require.Len(t, sink.entries, 1)
	e := sink.entries[0]
	assert.Equal(t, "reject", e.Action)
	assert.Equal(t, "pending", e.Before)
	assert.Equal(t, "rejected", e.After)
	assert.Equal(t, "reviewer", e.ActorRole)
	assert.Equal(t, "missing schedule", e.Details["reason"])
	assert.Equal(t, at, e.At)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(context.Background(), domain.AuditEntry{})
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Write(context.Background(), domain.AuditEntry{ID: "a1", ElectionID: "el-1", Action: "approve"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "el-1", logs.All()[0].ContextMap()["election_id"])
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sink := NewRedisSink(client, "elections")
	assert.Equal(t, "test:audit:elections", sink.Stream())

	entry := domain.AuditEntry{
		ID:         "a1",
		ElectionID: "el-1",
		Action:     "approve",
		ActorID:    "rev-1",
		ActorRole:  "reviewer",
		Before:     "pending",
		After:      "approved",
		Details:    map[string]string{"note": "ok"},
		At:         time.Now().UTC(),
	}
	require.NoError(t, sink.Write(context.Background(), entry))

	msgs, err := client.XRange(context.Background(), sink.Stream(), "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "el-1", msgs[0].Values["election_id"])
	assert.Equal(t, "approved", msgs[0].Values["after"])
	assert.JSONEq(t, `{"note":"ok"}`, msgs[0].Values["details"].(string))
}
