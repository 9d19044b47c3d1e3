package model

// Role is a capability grant consulted by the vault core. The core never
// manages role storage itself; an AuthorizationContext is injected and
// queried per operation.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleManager   Role = "MANAGER"
	RoleRewarder  Role = "REWARDER"
	RoleEmergency Role = "EMERGENCY"
	// RoleVault is the cross-component trust link: internal collaborators
	// (silo, funding source) accept calls carrying this role only.
	RoleVault Role = "VAULT"
)

// Principal identifies an authenticated caller and the roles granted to it.
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Roles []Role `json:"roles"`
}

func (p *Principal) HasRole(role Role) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthorizationContext is the capability check the vault consults before
// privileged operations. Implementations resolve role grants however they
// like (static config, database); the core only asks.
type AuthorizationContext interface {
	HasRole(role Role, p *Principal) bool
}

// StaticAuthz grants exactly the roles carried on the principal itself.
// Operator keys are resolved to principals by the auth middleware, so the
// role list is already trusted at this point.
type StaticAuthz struct{}

func (StaticAuthz) HasRole(role Role, p *Principal) bool {
	return p.HasRole(role)
}
