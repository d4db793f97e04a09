package domain

import "time"

// AuditEntry is one immutable record in the audit trail
type AuditEntry struct {
	ID         string            `json:"id" bson:"_id"`
	ElectionID string            `json:"election_id" bson:"election_id"`
	Action     string            `json:"action" bson:"action"`
	ActorID    string            `json:"actor_id" bson:"actor_id"`
	ActorRole  string            `json:"actor_role" bson:"actor_role"`
	Before     string            `json:"before,omitempty" bson:"before,omitempty"`
	After      string            `json:"after,omitempty" bson:"after,omitempty"`
	Details    map[string]string `json:"details,omitempty" bson:"details,omitempty"`
	At         time.Time         `json:"at" bson:"at"`
}

// NotificationKind identifies what happened
type NotificationKind string

const (
	NotifySubmitted       NotificationKind = "election.submitted"
	NotifyApproved        NotificationKind = "election.approved"
	NotifyRejected        NotificationKind = "election.rejected"
	NotifyRevoked         NotificationKind = "election.revoked"
	NotifyReconsidered    NotificationKind = "election.reconsidered"
	NotifyDeclared        NotificationKind = "election.declared"
	NotifyBallotCommitted NotificationKind = "ballot.committed"
)

// Notification is handed to the dispatcher after a committed state change
type Notification struct {
	Kind       NotificationKind  `json:"kind"`
	ElectionID string            `json:"election_id"`
	Recipient  string            `json:"recipient,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	At         time.Time         `json:"at"`
}
