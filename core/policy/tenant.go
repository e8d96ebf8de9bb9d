package policy

import "github.com/quizzq/backend/core/usage"

// Principal is the authenticated actor of a request, as a read-only snapshot.
type Principal struct {
	ID       string
	Role     Role
	TenantID string // school ID; empty for superadmins and school-less members
	Tier     usage.Tier
}

func (p Principal) PowerLevel() int { return p.Role.PowerLevel() }

func (p Principal) IsSuperAdmin() bool { return NormalizeRole(string(p.Role)) == RoleSuperAdmin }

// Scope describes who a resource belongs to.
type Scope struct {
	TenantID string // owning school; empty when the resource has none
	OwnerID  string // principal that created the resource, if any
}

// CanAccessTenant reports whether p may act on resources of tenantID.
// Superadmins reach every tenant; anybody else only their own. A missing tenant on either side is a denial.
func CanAccessTenant(p Principal, tenantID string) bool {
	if p.IsSuperAdmin() {
		return true
	}
	return p.TenantID != "" && tenantID != "" && p.TenantID == tenantID
}

// IsOwner reports whether p created the resource.
func (s Scope) IsOwner(p Principal) bool {
	return s.OwnerID != "" && s.OwnerID == p.ID
}
