package domain

import "time"

// Voter is a registered participant. Key is the canonical credential key and
// doubles as the storage key for both the voter and its ballot.
type Voter struct {
	ElectionID        string     `json:"election_id"`
	Key               string     `json:"key"`
	Name              string     `json:"name,omitempty"`
	Secondary         string     `json:"secondary,omitempty"`
	HasVoted          bool       `json:"has_voted"`
	VotedAt           *time.Time `json:"voted_at,omitempty"`
	IsReplaced        bool       `json:"is_replaced"`
	ReplacedBy        string     `json:"replaced_by,omitempty"`
	ReplacedAt        *time.Time `json:"replaced_at,omitempty"`
	PostVoteViewCount int        `json:"post_vote_view_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsActive reports whether the voter counts towards registration and lookups
func (v *Voter) IsActive() bool {
	return !v.IsReplaced
}

// RegisterVoterRequest registers a voter under the election's credential scheme
type RegisterVoterRequest struct {
	Credential string `json:"credential" validate:"required,min=3,max=320"`
	Secondary  string `json:"secondary,omitempty" validate:"max=320"`
	Name       string `json:"name,omitempty" validate:"max=200"`
}

// UpdateVoterRequest changes the non-key fields of a voter
type UpdateVoterRequest struct {
	Secondary *string `json:"secondary,omitempty" validate:"omitempty,max=320"`
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
}

// ReplaceVoterRequest supersedes a voter with a new credential
type ReplaceVoterRequest struct {
	Credential string `json:"credential" validate:"required,min=3,max=320"`
	Secondary  string `json:"secondary,omitempty" validate:"max=320"`
	Name       string `json:"name,omitempty" validate:"max=200"`
}

// VoterLoginRequest is what a voter types to enter an election
type VoterLoginRequest struct {
	Credential string `json:"credential" validate:"required,min=3,max=320"`
	Secondary  string `json:"secondary,omitempty" validate:"max=320"`
}

// VoterSession is returned after a successful voter login
type VoterSession struct {
	Token     string         `json:"token"`
	VoterKey  string         `json:"voter_key"`
	ExpiresAt time.Time      `json:"expires_at"`
	Access    *ResultsAccess `json:"access"`
}

// VoterIdentity is what a verified voter session token carries
type VoterIdentity struct {
	ElectionID string `json:"election_id"`
	VoterKey   string `json:"voter_key"`
}

// ResolveCredentialRequest asks for the canonical key of a raw credential
type ResolveCredentialRequest struct {
	Scheme     string `json:"scheme" validate:"required"`
	Credential string `json:"credential" validate:"required,max=320"`
}

// ResolvedCredential is the canonical form of a credential
type ResolvedCredential struct {
	Scheme string `json:"scheme"`
	Key    string `json:"key"`
}
