package domain

import "time"

// Role is the administrative role carried by an actor's token
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleReviewer   Role = "reviewer"
	RoleOrgAdmin   Role = "org_admin"
	RoleSystem     Role = "system"
)

// Capability is a permission checked by the workflow and setup operations
type Capability string

const (
	CapManageSetup Capability = "manage_setup"
	CapSubmit      Capability = "submit"
	CapApprove     Capability = "approve"
	CapReject      Capability = "reject"
	CapOverride    Capability = "override"
	CapDeclare     Capability = "declare"
)

var roleCapabilities = map[Role][]Capability{
	RoleSuperAdmin: {CapManageSetup, CapSubmit, CapApprove, CapReject, CapOverride, CapDeclare},
	RoleReviewer:   {CapApprove, CapReject},
	RoleOrgAdmin:   {CapManageSetup, CapSubmit, CapDeclare},
}

// Actor is whoever performs an administrative operation
type Actor struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// SystemActor is used for automatic transitions such as phase write-back
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// Can reports whether the actor's role grants capability c
func (a Actor) Can(c Capability) bool {
	for _, granted := range roleCapabilities[a.Role] {
		if granted == c {
			return true
		}
	}
	return false
}

// ScopedTo reports whether the actor may act on elections of organizationID.
// Super admins and reviewers are platform-wide.
func (a Actor) ScopedTo(organizationID string) bool {
	if a.Role == RoleSuperAdmin || a.Role == RoleReviewer {
		return true
	}
	return a.OrganizationID != "" && a.OrganizationID == organizationID
}

// AdminToken is returned when a token is issued for an actor
type AdminToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
