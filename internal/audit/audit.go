// Package audit records the immutable audit trail. Writes are best-effort:
// a failing sink is logged and never fails the state change being described.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ballot-engine/internal/domain"
)

// DefaultTimeout bounds a single sink write
const DefaultTimeout = 3 * time.Second

// Sink appends audit entries somewhere durable
type Sink interface {
	Write(ctx context.Context, entry domain.AuditEntry) error
}

// Recorder stamps entries and hands them to a sink without letting sink
// failures or slowness leak to the caller
type Recorder struct {
	sink    Sink
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(sink Sink, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{sink: sink, log: log, timeout: DefaultTimeout, now: time.Now}
}

// Record writes entry. The caller's cancellation does not abort the write,
// since the change it describes has already committed.
func (r *Recorder) Record(ctx context.Context, entry domain.AuditEntry) {
	if r == nil || r.sink == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = r.now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.sink.Write(writeCtx, entry); err != nil {
		r.log.Error("audit write failed",
			zap.String("audit_id", entry.ID),
			zap.String("election_id", entry.ElectionID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

// Transition records a workflow transition
func (r *Recorder) Transition(ctx context.Context, electionID string, tr domain.Transition) {
	details := map[string]string{}
	if tr.Reason != "" {
		details["reason"] = tr.Reason
	}
	r.Record(ctx, domain.AuditEntry{
		ElectionID: electionID,
		Action:     string(tr.Action),
		ActorID:    tr.ActorID,
		ActorRole:  string(tr.ActorRole),
		Before:     string(tr.From),
		After:      string(tr.To),
		Details:    details,
		At:         tr.At,
	})
}

// LogSink writes entries to the structured log
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Write(_ context.Context, e domain.AuditEntry) error {
	s.log.Info("audit",
		zap.String("audit_id", e.ID),
		zap.String("election_id", e.ElectionID),
		zap.String("action", e.Action),
		zap.String("actor_id", e.ActorID),
		zap.String("actor_role", e.ActorRole),
		zap.String("before", e.Before),
		zap.String("after", e.After),
		zap.Any("details", e.Details),
		zap.Time("at", e.At))
	return nil
}
